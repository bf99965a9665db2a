package logic

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var errNotFinite = errors.New("not a finite number")

// ParseTemperature interprets a sensor payload as degrees.
// Numbers and numeric strings are accepted; anything that is not a finite
// number yields an *InvalidReadingError.
func ParseTemperature(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, &InvalidReadingError{Value: value, Err: err}
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &InvalidReadingError{Value: value, Err: err}
		}
		f = parsed
	case []byte:
		return ParseTemperature(string(v))
	default:
		return 0, &InvalidReadingError{Value: value}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &InvalidReadingError{Value: value, Err: errNotFinite}
	}
	return f, nil
}
