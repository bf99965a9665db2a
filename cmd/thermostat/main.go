// Command thermostat keeps a single heating zone at its scheduled temperature
// by switching the heating relay with hysteresis.
package main

import "github.com/sweeney/thermostat/cmd/thermostat/cmd"

func main() {
	cmd.Execute()
}
