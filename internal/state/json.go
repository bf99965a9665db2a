package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

// SnapshotJSON is the top-level JSON envelope for a state snapshot.
// Its shape is consumed by the state file, MQTT, history and the web UI.
type SnapshotJSON struct {
	State StateJSON `json:"state"`
}

// StateJSON contains the snapshot details.
type StateJSON struct {
	ID                    string   `json:"id,omitempty"`
	CurrentTemperature    *float64 `json:"current_temperature"`
	LastTemperatureUpdate *string  `json:"last_temperature_update"`
	Heating               string   `json:"heating"`
	Occupied              bool     `json:"occupied"`
	DesiredTemperature    float64  `json:"desired_temperature"`
	Program               *string  `json:"program"`
	Command               string   `json:"command"`
	UpdatedAt             string   `json:"updated_at"`
}

// ToJSON converts a snapshot into its wire form. Unknown values become null.
func ToJSON(snap Snapshot) StateJSON {
	out := StateJSON{
		ID:                 snap.ID,
		Heating:            snap.Relay.String(),
		Occupied:           snap.Occupied,
		DesiredTemperature: snap.DesiredTemperature,
		Command:            snap.LastCommand.String(),
		UpdatedAt:          snap.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if snap.HasTemperature {
		t := snap.Temperature
		out.CurrentTemperature = &t
	}
	if !snap.TemperatureAt.IsZero() {
		ts := snap.TemperatureAt.UTC().Format(time.RFC3339)
		out.LastTemperatureUpdate = &ts
	}
	if snap.ActiveProgram != "" {
		p := snap.ActiveProgram
		out.Program = &p
	}
	return out
}

// FormatJSON returns the indented JSON snapshot for files and the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(SnapshotJSON{State: ToJSON(snap)}, "", "  ")
	return data
}

// FormatEvent returns the compact JSON snapshot for MQTT and websocket clients.
func FormatEvent(snap Snapshot) []byte {
	data, _ := json.Marshal(SnapshotJSON{State: ToJSON(snap)})
	return data
}

// ParseJSON decodes a snapshot produced by FormatJSON or FormatEvent.
func ParseJSON(data []byte) (Snapshot, error) {
	var env SnapshotJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	in := env.State

	snap := Snapshot{
		ID:                 in.ID,
		Occupied:           in.Occupied,
		DesiredTemperature: in.DesiredTemperature,
		Relay:              parseRelay(in.Heating),
		LastCommand:        parseCommand(in.Command),
	}
	if in.CurrentTemperature != nil {
		snap.Temperature = *in.CurrentTemperature
		snap.HasTemperature = true
	}
	if in.LastTemperatureUpdate != nil {
		ts, err := time.Parse(time.RFC3339, *in.LastTemperatureUpdate)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode last_temperature_update: %w", err)
		}
		snap.TemperatureAt = ts
	}
	if in.Program != nil {
		snap.ActiveProgram = *in.Program
	}
	if in.UpdatedAt != "" {
		ts, err := time.Parse(time.RFC3339, in.UpdatedAt)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode updated_at: %w", err)
		}
		snap.UpdatedAt = ts
	}
	return snap, nil
}

func parseRelay(s string) logic.RelayState {
	switch s {
	case "ON":
		return logic.RelayOn
	case "OFF":
		return logic.RelayOff
	default:
		return logic.RelayUnknown
	}
}

func parseCommand(s string) logic.RelayCommand {
	switch s {
	case "TURN_ON":
		return logic.TurnOn
	case "TURN_OFF":
		return logic.TurnOff
	default:
		return logic.NoChange
	}
}
