package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/thermostat/internal/logic"
)

func testSnapshot() Snapshot {
	return Snapshot{
		ID:                 "7f0c3c1e-0000-4000-8000-000000000001",
		Temperature:        19.5,
		HasTemperature:     true,
		TemperatureAt:      time.Date(2026, 1, 5, 6, 59, 30, 0, time.UTC),
		Relay:              logic.RelayOff,
		Occupied:           true,
		DesiredTemperature: 20,
		ActiveProgram:      "day",
		LastCommand:        logic.TurnOn,
		UpdatedAt:          time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC),
	}
}

func TestFormatEventExactJSON(t *testing.T) {
	got := string(FormatEvent(testSnapshot()))
	want := `{"state":{"id":"7f0c3c1e-0000-4000-8000-000000000001","current_temperature":19.5,` +
		`"last_temperature_update":"2026-01-05T06:59:30Z","heating":"OFF","occupied":true,` +
		`"desired_temperature":20,"program":"day","command":"TURN_ON","updated_at":"2026-01-05T07:00:00Z"}}`
	require.Equal(t, want, got)
}

func TestFormatJSONUnknownValues(t *testing.T) {
	snap := Snapshot{
		DesiredTemperature: 14,
		Occupied:           true,
		UpdatedAt:          time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC),
	}

	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &parsed))

	inner := parsed["state"]
	require.Nil(t, inner["current_temperature"])
	require.Nil(t, inner["last_temperature_update"])
	require.Nil(t, inner["program"])
	require.Equal(t, "UNKNOWN", inner["heating"])
	require.Equal(t, "NO_CHANGE", inner["command"])
	require.NotContains(t, inner, "id")
}

func TestParseJSONRoundTrip(t *testing.T) {
	want := testSnapshot()

	got, err := ParseJSON(FormatJSON(want))
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Temperature, got.Temperature)
	require.True(t, got.HasTemperature)
	require.True(t, want.TemperatureAt.Equal(got.TemperatureAt))
	require.Equal(t, want.Relay, got.Relay)
	require.Equal(t, want.ActiveProgram, got.ActiveProgram)
	require.Equal(t, want.LastCommand, got.LastCommand)
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestParseJSONRejectsGarbage(t *testing.T) {
	_, err := ParseJSON([]byte("{"))
	require.Error(t, err)

	_, err = ParseJSON([]byte(`{"state":{"updated_at":"yesterday"}}`))
	require.Error(t, err)
}
