package servo

import (
	"fmt"
	"math"
)

// Spec holds the calibration and current target angle of one servo channel.
//
// A Spec is built in two phases: NewSpec, then SetPulseDurationRange and
// SetAngleRange. Ready reports whether both ranges are in place.
//
// Spec is not safe for concurrent mutation; the sweep scheduler is its only
// writer while a session runs.
type Spec struct {
	channel int

	cal      Calibration
	pulseSet bool
	angleSet bool

	angle float64
}

// NewSpec creates an uncalibrated spec for a channel.
func NewSpec(channel int) (*Spec, error) {
	if channel < 0 {
		return nil, fmt.Errorf("%w: channel %d is negative", ErrConfiguration, channel)
	}
	return &Spec{channel: channel}, nil
}

// Channel is the PWM output this spec drives.
func (s *Spec) Channel() int { return s.channel }

// Angle is the stored (clamped) target angle in degrees.
func (s *Spec) Angle() float64 { return s.angle }

// Calibration returns the current ranges; unset ranges are zero.
func (s *Spec) Calibration() Calibration { return s.cal }

// Ready reports whether both ranges have been set.
func (s *Spec) Ready() bool { return s.pulseSet && s.angleSet }

// SetPulseDurationRange replaces the pulse range. Bounds must be finite with
// 0 < minMs < maxMs.
func (s *Spec) SetPulseDurationRange(minMs, maxMs float64) error {
	if !finiteRange(minMs, maxMs) {
		return fmt.Errorf("%w: min pulse %g ms must be less than max pulse %g ms, both finite", ErrConfiguration, minMs, maxMs)
	}
	if !(minMs > 0) {
		return fmt.Errorf("%w: min pulse %g ms must be greater than 0", ErrConfiguration, minMs)
	}
	s.cal.MinPulseMs = minMs
	s.cal.MaxPulseMs = maxMs
	s.pulseSet = true
	return nil
}

// SetAngleRange replaces the angle range and re-clamps the stored angle into it.
func (s *Spec) SetAngleRange(minDeg, maxDeg float64) error {
	if !finiteRange(minDeg, maxDeg) {
		return fmt.Errorf("%w: min angle %g deg must be less than max angle %g deg, both finite", ErrConfiguration, minDeg, maxDeg)
	}
	s.cal.MinAngleDeg = minDeg
	s.cal.MaxAngleDeg = maxDeg
	s.angleSet = true
	s.angle = s.clamp(s.angle)
	return nil
}

// SetAngle clamps angle into the angle range, stores it and returns the
// stored value. Clamping is silent; compare the result with the input to
// detect it. NaN leaves the angle unchanged.
func (s *Spec) SetAngle(angle float64) float64 {
	if math.IsNaN(angle) {
		return s.angle
	}
	s.angle = s.clamp(angle)
	return s.angle
}

// SetAngleChecked is SetAngle with NaN reported as a configuration error.
func (s *Spec) SetAngleChecked(angle float64) (float64, error) {
	if math.IsNaN(angle) {
		return s.angle, fmt.Errorf("%w: angle is NaN", ErrConfiguration)
	}
	return s.SetAngle(angle), nil
}

func (s *Spec) clamp(angle float64) float64 {
	if !s.angleSet {
		return angle
	}
	if angle < s.cal.MinAngleDeg {
		return s.cal.MinAngleDeg
	}
	if angle > s.cal.MaxAngleDeg {
		return s.cal.MaxAngleDeg
	}
	return angle
}

// CurrentPulseDuration maps the stored angle to a pulse width in milliseconds.
func (s *Spec) CurrentPulseDuration() (float64, error) {
	if !s.Ready() {
		return 0, fmt.Errorf("%w: channel %d calibration incomplete", ErrConfiguration, s.channel)
	}
	return ToPulseDuration(s.angle, s.cal)
}

// IncrementAngle advances the angle by step. Passing the maximum jumps
// straight to the minimum (saturating wraparound, not modulo): 170+30 with a
// 180 maximum lands on the minimum, not 20.
func (s *Spec) IncrementAngle(step float64) float64 {
	next := s.angle + step
	if s.angleSet && next > s.cal.MaxAngleDeg {
		next = s.cal.MinAngleDeg
	}
	return s.SetAngle(next)
}

func (s *Spec) String() string {
	return fmt.Sprintf("servo(ch=%d angle=%g)", s.channel, s.angle)
}
