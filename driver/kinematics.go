package driver

import (
	"errors"

	"gantryd/action"
)

// Cartesian implements 1:1 Cartesian kinematics, adapted from
// standalone/kinematics/cartesian.go to operate on action.KinematicMove
// instead of the teacher's own standalone.Position.
type Cartesian struct {
	config MachineConfig
}

// NewCartesian validates that X, Y and Z axes are configured and returns a
// Cartesian kinematics instance.
func NewCartesian(config MachineConfig) (*Cartesian, error) {
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := config.Axes[axis]; !ok {
			return nil, errors.New(axis + " axis not configured")
		}
	}
	return &Cartesian{config: config}, nil
}

// CalcPosition converts a KinematicMove's relative displacement into
// per-axis step deltas. For Cartesian kinematics this is a 1:1 mapping.
func (k *Cartesian) CalcPosition(m action.KinematicMove) (xSteps, ySteps, zSteps, eSteps int64) {
	return k.toSteps("x", m.X), k.toSteps("y", m.Y), k.toSteps("z", m.Z), k.toSteps("e", m.E)
}

func (k *Cartesian) toSteps(axis string, mm float64) int64 {
	cfg := k.config.Axes[axis]
	return int64(mm * cfg.StepsPerMM)
}

// CheckLimits validates that the absolute target position (current + move
// delta) stays within each configured axis's travel limits.
func (k *Cartesian) CheckLimits(current, m action.KinematicMove) error {
	check := func(axis string, pos float64) error {
		cfg, ok := k.config.Axes[axis]
		if !ok {
			return nil
		}
		if pos < cfg.MinPosition || pos > cfg.MaxPosition {
			return errors.New(axis + " position out of limits")
		}
		return nil
	}
	if err := check("x", current.X+m.X); err != nil {
		return err
	}
	if err := check("y", current.Y+m.Y); err != nil {
		return err
	}
	if err := check("z", current.Z+m.Z); err != nil {
		return err
	}
	return nil
}
