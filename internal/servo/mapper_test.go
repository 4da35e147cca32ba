package servo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func stdCal() Calibration {
	return Calibration{MinPulseMs: 1.0, MaxPulseMs: 2.0, MinAngleDeg: 0, MaxAngleDeg: 180}
}

func TestToPulseDuration_MidRange(t *testing.T) {
	got, err := ToPulseDuration(90, stdCal())
	require.NoError(t, err)
	require.Equal(t, 1.5, got)
}

func TestToPulseDuration_EndpointsExact(t *testing.T) {
	cals := []Calibration{
		stdCal(),
		{MinPulseMs: 0.5, MaxPulseMs: 2.5, MinAngleDeg: -90, MaxAngleDeg: 90},
		{MinPulseMs: 0.7, MaxPulseMs: 2.3, MinAngleDeg: 13.3, MaxAngleDeg: 171.1},
	}
	for _, c := range cals {
		lo, err := ToPulseDuration(c.MinAngleDeg, c)
		require.NoError(t, err)
		require.Equal(t, c.MinPulseMs, lo)

		hi, err := ToPulseDuration(c.MaxAngleDeg, c)
		require.NoError(t, err)
		require.Equal(t, c.MaxPulseMs, hi)
	}
}

func TestToPulseDuration_Monotonic(t *testing.T) {
	c := Calibration{MinPulseMs: 0.6, MaxPulseMs: 2.4, MinAngleDeg: -45, MaxAngleDeg: 135}
	prev := math.Inf(-1)
	for a := c.MinAngleDeg; a <= c.MaxAngleDeg; a += 0.25 {
		got, err := ToPulseDuration(a, c)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, prev, "angle=%v", a)
		prev = got
	}
}

func TestToPulseDuration_MonotonicAtRangeEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20000; i++ {
		minMs := 0.1 + rng.Float64()*2
		minDeg := rng.Float64()*360 - 180
		c := Calibration{
			MinPulseMs:  minMs,
			MaxPulseMs:  minMs + 0.01 + rng.Float64()*3,
			MinAngleDeg: minDeg,
			MaxAngleDeg: minDeg + 0.5 + rng.Float64()*360,
		}

		atMax, err := ToPulseDuration(c.MaxAngleDeg, c)
		require.NoError(t, err)
		belowMax, err := ToPulseDuration(math.Nextafter(c.MaxAngleDeg, math.Inf(-1)), c)
		require.NoError(t, err)
		require.LessOrEqual(t, belowMax, atMax, "cal=%+v", c)
		require.LessOrEqual(t, belowMax, c.MaxPulseMs, "cal=%+v", c)

		atMin, err := ToPulseDuration(c.MinAngleDeg, c)
		require.NoError(t, err)
		aboveMin, err := ToPulseDuration(math.Nextafter(c.MinAngleDeg, math.Inf(1)), c)
		require.NoError(t, err)
		require.GreaterOrEqual(t, aboveMin, atMin, "cal=%+v", c)
		require.GreaterOrEqual(t, aboveMin, c.MinPulseMs, "cal=%+v", c)
	}
}

func TestToPulseDuration_ExtrapolatesOutOfRange(t *testing.T) {
	got, err := ToPulseDuration(270, stdCal())
	require.NoError(t, err)
	require.InDelta(t, 2.5, got, 1e-12)
}

func TestToPulseDuration_RejectsBadCalibration(t *testing.T) {
	cases := map[string]Calibration{
		"Unset":           {},
		"DegeneratePulse": {MinPulseMs: 1, MaxPulseMs: 1, MinAngleDeg: 0, MaxAngleDeg: 180},
		"DegenerateAngle": {MinPulseMs: 1, MaxPulseMs: 2, MinAngleDeg: 10, MaxAngleDeg: 10},
		"ZeroPulse":       {MinPulseMs: 0, MaxPulseMs: 2, MinAngleDeg: 0, MaxAngleDeg: 180},
		"InfPulse":        {MinPulseMs: 1, MaxPulseMs: math.Inf(1), MinAngleDeg: 0, MaxAngleDeg: 180},
		"NaNPulse":        {MinPulseMs: 1, MaxPulseMs: math.NaN(), MinAngleDeg: 0, MaxAngleDeg: 180},
		"InfAngle":        {MinPulseMs: 1, MaxPulseMs: 2, MinAngleDeg: math.Inf(-1), MaxAngleDeg: math.Inf(1)},
		"NaNAngle":        {MinPulseMs: 1, MaxPulseMs: 2, MinAngleDeg: math.NaN(), MaxAngleDeg: 180},
		"OverflowAngle":   {MinPulseMs: 1, MaxPulseMs: 2, MinAngleDeg: -math.MaxFloat64, MaxAngleDeg: math.MaxFloat64},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ToPulseDuration(45, c)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestToAngle_InvertsToPulseDuration(t *testing.T) {
	c := stdCal()
	for _, a := range []float64{0, 30, 90, 150, 180} {
		p, err := ToPulseDuration(a, c)
		require.NoError(t, err)
		back, err := ToAngle(p, c)
		require.NoError(t, err)
		require.InDelta(t, a, back, 1e-9)
	}

	_, err := ToAngle(math.NaN(), c)
	require.ErrorIs(t, err, ErrConfiguration)
}
