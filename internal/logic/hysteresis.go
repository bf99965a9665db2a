package logic

// Decide returns the relay command for a two-threshold hysteresis controller.
//
// Rules, first match wins:
//   - no current temperature: NoChange
//   - relay state unknown: NoChange
//   - relay off and current < desired-low: TurnOn
//   - relay on and current > desired+high: TurnOff
//   - otherwise: NoChange
//
// Both comparisons are strict, so a reading exactly on a threshold never
// switches the relay. A NaN reading compares false everywhere and yields NoChange.
func Decide(in Input) RelayCommand {
	if !in.HasCurrent {
		return NoChange
	}

	switch in.Relay {
	case RelayOff:
		if in.Current < in.Desired-in.LowThreshold {
			return TurnOn
		}
	case RelayOn:
		if in.Current > in.Desired+in.HighThreshold {
			return TurnOff
		}
	}

	return NoChange
}

// Insufficient reports whether in lacks the data needed for a decision.
func (in Input) Insufficient() bool {
	return !in.HasCurrent || !in.Relay.Known()
}

// Command returns the relay state a command asks for.
// ok is false for NoChange.
func (c RelayCommand) Command() (on bool, ok bool) {
	switch c {
	case TurnOn:
		return true, true
	case TurnOff:
		return false, true
	default:
		return false, false
	}
}
