package logic

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"float64", 19.4, 19.4},
		{"float32", float32(20.5), 20.5},
		{"int", 21, 21},
		{"string", "19.4", 19.4},
		{"padded string", " 18.25\n", 18.25},
		{"bytes", []byte("17"), 17},
		{"json number", json.Number("22.5"), 22.5},
		{"negative", "-3.5", -3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTemperature(tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTemperatureRejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"word", "warm"},
		{"empty", ""},
		{"nil", nil},
		{"bool", true},
		{"NaN", math.NaN()},
		{"Inf", math.Inf(1)},
		{"NaN string", "NaN"},
		{"Inf string", "+Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemperature(tt.value)
			var ire *InvalidReadingError
			if !errors.As(err, &ire) {
				t.Fatalf("expected InvalidReadingError, got %v", err)
			}
		})
	}
}
