// Package driver implements the reference physical-printer driver
// collaborator: it consumes the action.PrinterAction stream emitted by the
// ActionQueue and turns it into simulated step counts and, when wired to
// real hardware, Klipper wire-protocol commands. It is explicitly a
// reference implementation of the spec's consumed collaborator contract,
// not part of the core's tested surface -- see SPEC_FULL.md section 6.
package driver

// AxisConfig is the per-axis calibration and travel-limit data the bridge
// needs to convert a KinematicMove into step counts, adapted from
// standalone/types.go's AxisConfig (GPIO pin fields dropped -- see
// DESIGN.md).
type AxisConfig struct {
	StepsPerMM  float64
	MinPosition float64
	MaxPosition float64
}

// MachineConfig collects the per-axis configuration the Bridge is built
// with.
type MachineConfig struct {
	Axes map[string]AxisConfig
}

// DefaultMachineConfig returns a permissive configuration suitable for a
// simulated bridge with no real hardware attached.
func DefaultMachineConfig() MachineConfig {
	mk := func() AxisConfig {
		return AxisConfig{StepsPerMM: 80, MinPosition: -1000, MaxPosition: 1000}
	}
	return MachineConfig{Axes: map[string]AxisConfig{
		"x": mk(),
		"y": mk(),
		"z": mk(),
		"e": mk(),
	}}
}
