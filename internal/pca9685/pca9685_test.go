package pca9685

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servo-sweep/internal/servo"
)

type writeOp struct {
	reg  byte
	vals []byte
}

type fakeBus struct {
	mode1 byte

	writes []writeOp

	failReadAt    bool
	failWriteReg  map[byte]error
	failWriteRegs error
	closeErr      error
	closes        int
}

func (f *fakeBus) ReadRegU8(reg byte) (byte, error) {
	if f.failReadAt {
		return 0, errors.New("nack")
	}
	if reg == regMode1 {
		return f.mode1, nil
	}
	return 0, nil
}

func (f *fakeBus) WriteReg(reg, value byte) error {
	if err := f.failWriteReg[reg]; err != nil {
		return err
	}
	f.writes = append(f.writes, writeOp{reg: reg, vals: []byte{value}})
	return nil
}

func (f *fakeBus) WriteRegs(reg byte, values []byte) error {
	if f.failWriteRegs != nil {
		return f.failWriteRegs
	}
	f.writes = append(f.writes, writeOp{reg: reg, vals: append([]byte(nil), values...)})
	return nil
}

func (f *fakeBus) Close() error {
	f.closes++
	return f.closeErr
}

type fakeOE struct {
	enabled bool
	closed  int
	err     error
}

func (o *fakeOE) Enable() error  { o.enabled = true; return o.err }
func (o *fakeOE) Disable() error { o.enabled = false; return nil }
func (o *fakeOE) Close() error {
	o.enabled = false
	o.closed++
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	return l, hook
}

func openFake(t *testing.T, bus *fakeBus) *Controller {
	t.Helper()
	noSleep(t)
	l, _ := quietLogger()
	c, err := Open(bus, Config{Logger: l})
	require.NoError(t, err)
	bus.writes = nil
	return c
}

func readySpec(t *testing.T, channel int, angle float64) *servo.Spec {
	t.Helper()
	s, err := servo.NewSpec(channel)
	require.NoError(t, err)
	require.NoError(t, s.SetPulseDurationRange(1.0, 2.0))
	require.NoError(t, s.SetAngleRange(0, 180))
	s.SetAngle(angle)
	return s
}

func TestPrescale(t *testing.T) {
	// 25MHz / 4096 / (50 * 0.9) - 1 = 134.6
	assert.Equal(t, byte(135), Prescale(50))
	assert.Equal(t, byte(maxPrescale), Prescale(1))
	assert.Equal(t, byte(minPrescale), Prescale(1600))
}

func TestEncodeServo(t *testing.T) {
	// 1.5ms of a 20ms period = 7.5% of 4095.
	assert.Equal(t, uint16(307), EncodeServo(1.5, 50))
	assert.Equal(t, uint16(204), EncodeServo(1.0, 50))
	assert.Equal(t, uint16(409), EncodeServo(2.0, 50))
	assert.Equal(t, uint16(maxCount), EncodeServo(30, 50))
}

func TestDutyCounts_Clamps(t *testing.T) {
	assert.Equal(t, uint16(0), DutyCounts(-5))
	assert.Equal(t, uint16(maxCount), DutyCounts(150))
	assert.Equal(t, uint16(2047), DutyCounts(50))
}

func TestOpen_ProgramsFrequency(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{mode1: 0x01}
	oe := &fakeOE{}
	l, _ := quietLogger()

	c, err := Open(bus, Config{OutputEnable: oe, Logger: l})
	require.NoError(t, err)
	assert.Equal(t, DefaultFrequencyHz, c.Frequency())
	assert.True(t, oe.enabled)

	want := []writeOp{
		{reg: regMode1, vals: []byte{0x80}},
		{reg: regMode1, vals: []byte{0x11}},
		{reg: regPrescale, vals: []byte{135}},
		{reg: regMode1, vals: []byte{0x01}},
		{reg: regMode1, vals: []byte{0xA1}},
	}
	assert.Equal(t, want, bus.writes)
}

func TestOpen_FailureReleasesBus(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{failReadAt: true}
	l, _ := quietLogger()

	_, err := Open(bus, Config{Logger: l})
	require.Error(t, err)
	assert.True(t, IsDeviceError(err))
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "open", de.Op)
	assert.Equal(t, 1, bus.closes)
}

func TestOpen_RejectsBadFrequency(t *testing.T) {
	bus := &fakeBus{}
	_, err := Open(bus, Config{FrequencyHz: 5000})
	require.ErrorIs(t, err, servo.ErrConfiguration)
	assert.Equal(t, 1, bus.closes)

	_, err = Open(nil, Config{})
	assert.True(t, IsDeviceError(err))
}

func TestApplySpec_WritesChannelRegisters(t *testing.T) {
	bus := &fakeBus{}
	c := openFake(t, bus)

	require.NoError(t, c.ApplySpec(readySpec(t, 2, 90)))

	require.Len(t, bus.writes, 1)
	assert.Equal(t, byte(0x06+4*2), bus.writes[0].reg)
	// ON=0, OFF=307 (0x0133).
	assert.Equal(t, []byte{0x00, 0x00, 0x33, 0x01}, bus.writes[0].vals)
}

func TestApplySpec_ConfigurationErrors(t *testing.T) {
	bus := &fakeBus{}
	c := openFake(t, bus)

	unready, err := servo.NewSpec(0)
	require.NoError(t, err)
	err = c.ApplySpec(unready)
	require.ErrorIs(t, err, servo.ErrConfiguration)
	assert.False(t, IsDeviceError(err))

	err = c.ApplySpec(readySpec(t, NumChannels, 0))
	require.ErrorIs(t, err, servo.ErrConfiguration)

	assert.Empty(t, bus.writes)
}

func TestApplySpec_TransportFailure(t *testing.T) {
	bus := &fakeBus{}
	c := openFake(t, bus)
	bus.failWriteRegs = errors.New("timeout")

	err := c.ApplySpec(readySpec(t, 1, 0))
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "write", de.Op)
	assert.Equal(t, 1, de.Channel)
	assert.EqualError(t, de.Unwrap(), "timeout")
}

func TestSetDutyCycle(t *testing.T) {
	bus := &fakeBus{}
	c := openFake(t, bus)

	require.NoError(t, c.SetDutyCycle(15, 100))
	assert.Equal(t, byte(0x06+4*15), bus.writes[0].reg)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x0F}, bus.writes[0].vals)

	require.ErrorIs(t, c.SetPWM(-1, 0, 0), servo.ErrConfiguration)
}

func TestClose_Idempotent(t *testing.T) {
	bus := &fakeBus{}
	oe := &fakeOE{}
	noSleep(t)
	l, _ := quietLogger()
	c, err := Open(bus, Config{OutputEnable: oe, Logger: l})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, bus.closes)
	assert.Equal(t, 1, oe.closed)

	err = c.ApplySpec(readySpec(t, 0, 0))
	require.ErrorIs(t, err, ErrClosed)
}

func TestClose_HealthyFailureReportedOnce(t *testing.T) {
	bus := &fakeBus{}
	c := openFake(t, bus)
	bus.closeErr = errors.New("ebusy")

	err := c.Close()
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "close", de.Op)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, bus.closes)
}

func TestClose_AfterFailureSwallowed(t *testing.T) {
	bus := &fakeBus{}
	noSleep(t)
	l, hook := quietLogger()
	c, err := Open(bus, Config{Logger: l})
	require.NoError(t, err)

	bus.failWriteRegs = errors.New("disconnected")
	require.Error(t, c.ApplySpec(readySpec(t, 0, 45)))

	bus.failWriteReg = map[byte]error{regMode1: errors.New("disconnected")}
	bus.closeErr = errors.New("disconnected")
	require.NoError(t, c.Close())
	assert.Equal(t, 1, bus.closes)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
