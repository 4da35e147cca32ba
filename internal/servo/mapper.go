package servo

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration marks invalid or missing calibration.
var ErrConfiguration = errors.New("servo: invalid configuration")

// Calibration maps an angle range onto a pulse-duration range.
//
// A zero Calibration is unset; ToPulseDuration rejects it.
type Calibration struct {
	MinPulseMs float64
	MaxPulseMs float64

	MinAngleDeg float64
	MaxAngleDeg float64
}

func finiteRange(lo, hi float64) bool {
	return lo < hi && !math.IsInf(hi-lo, 0)
}

func (c Calibration) pulseRangeValid() bool {
	return c.MinPulseMs > 0 && finiteRange(c.MinPulseMs, c.MaxPulseMs)
}

func (c Calibration) angleRangeValid() bool {
	return finiteRange(c.MinAngleDeg, c.MaxAngleDeg)
}

// Validate reports whether both ranges are set, finite and non-degenerate.
func (c Calibration) Validate() error {
	if !c.pulseRangeValid() {
		return fmt.Errorf("%w: pulse duration range [%g, %g] ms", ErrConfiguration, c.MinPulseMs, c.MaxPulseMs)
	}
	if !c.angleRangeValid() {
		return fmt.Errorf("%w: angle range [%g, %g] deg", ErrConfiguration, c.MinAngleDeg, c.MaxAngleDeg)
	}
	return nil
}

// ToPulseDuration linearly maps angle from [MinAngleDeg, MaxAngleDeg] onto
// [MinPulseMs, MaxPulseMs].
//
// The angle is not clamped: values outside the angle range extrapolate past
// the pulse range. Callers are expected to clamp first (Spec does). In-range
// angles always land inside the pulse range, endpoints exactly.
func ToPulseDuration(angle float64, cal Calibration) (float64, error) {
	if err := cal.Validate(); err != nil {
		return 0, err
	}
	// Exact endpoints; avoids rounding drift at the edges of the sweep.
	switch angle {
	case cal.MinAngleDeg:
		return cal.MinPulseMs, nil
	case cal.MaxAngleDeg:
		return cal.MaxPulseMs, nil
	}
	t := (angle - cal.MinAngleDeg) / (cal.MaxAngleDeg - cal.MinAngleDeg)
	pulse := cal.MinPulseMs + t*(cal.MaxPulseMs-cal.MinPulseMs)
	if angle > cal.MinAngleDeg && angle < cal.MaxAngleDeg {
		// Rounding can overshoot the pulse range by an ulp near the ends.
		pulse = math.Min(math.Max(pulse, cal.MinPulseMs), cal.MaxPulseMs)
	}
	return pulse, nil
}

// ToAngle is the inverse of ToPulseDuration.
func ToAngle(pulseMs float64, cal Calibration) (float64, error) {
	if err := cal.Validate(); err != nil {
		return 0, err
	}
	if math.IsNaN(pulseMs) {
		return 0, fmt.Errorf("%w: pulse duration is NaN", ErrConfiguration)
	}
	switch pulseMs {
	case cal.MinPulseMs:
		return cal.MinAngleDeg, nil
	case cal.MaxPulseMs:
		return cal.MaxAngleDeg, nil
	}
	t := (pulseMs - cal.MinPulseMs) / (cal.MaxPulseMs - cal.MinPulseMs)
	return cal.MinAngleDeg + t*(cal.MaxAngleDeg-cal.MinAngleDeg), nil
}
