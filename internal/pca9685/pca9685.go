// Package pca9685 drives the 16-channel 12-bit PCA9685 PWM controller for
// hobby servos.
package pca9685

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"servo-sweep/internal/gpio"
	"servo-sweep/internal/servo"
)

var sleep = time.Sleep

const (
	DefaultAddress     = 0x40
	DefaultFrequencyHz = 50.0

	maxFrequencyHz = 1600.0
)

// RegBus is register access to the controller at its bus address.
// *i2c.Dev and *periphbus.Dev satisfy it.
type RegBus interface {
	ReadRegU8(reg byte) (byte, error)
	WriteReg(reg, value byte) error
	WriteRegs(reg byte, values []byte) error
	Close() error
}

// PulseSource is what ApplySpec needs from a servo spec.
type PulseSource interface {
	Channel() int
	CurrentPulseDuration() (float64, error)
}

var _ PulseSource = (*servo.Spec)(nil)

type Config struct {
	// FrequencyHz is the chip-wide PWM frequency; 0 means DefaultFrequencyHz.
	FrequencyHz float64

	// OutputEnable is optional. When set it is enabled after open and
	// closed (outputs disabled) on Close.
	OutputEnable gpio.OutputEnable

	Logger logrus.FieldLogger
}

type handleState int

const (
	stateOpen handleState = iota
	// stateFailed: a transfer failed; the handle still needs closing.
	stateFailed
	stateClosed
)

// Controller owns one open connection to one PCA9685.
//
// Methods are safe for concurrent use, though a sweep session is expected to
// be the only writer.
type Controller struct {
	mu    sync.Mutex
	bus   RegBus
	state handleState

	freqHz float64
	oe     gpio.OutputEnable
	log    logrus.FieldLogger
}

// Open resets the chip, programs the PWM frequency and enables register
// auto-increment. On failure the bus is released and a DeviceError returned.
func Open(bus RegBus, cfg Config) (*Controller, error) {
	if bus == nil {
		return nil, &DeviceError{Op: "open", Channel: -1, Err: errors.New("bus is nil")}
	}
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultFrequencyHz
	}
	if !(cfg.FrequencyHz > 0) || cfg.FrequencyHz > maxFrequencyHz {
		_ = bus.Close()
		return nil, fmt.Errorf("%w: pwm frequency %g Hz out of range (0, %g]", servo.ErrConfiguration, cfg.FrequencyHz, maxFrequencyHz)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	c := &Controller{bus: bus, oe: cfg.OutputEnable, log: cfg.Logger}
	if err := c.connect(cfg.FrequencyHz); err != nil {
		if closeErr := c.release(); closeErr != nil {
			c.log.WithError(closeErr).Debug("pca9685: release after failed open")
		}
		c.state = stateClosed
		return nil, &DeviceError{Op: "open", Channel: -1, Err: err}
	}
	c.log.WithFields(logrus.Fields{
		"frequency_hz": cfg.FrequencyHz,
		"prescale":     Prescale(cfg.FrequencyHz),
	}).Debug("pca9685: opened")
	return c, nil
}

func (c *Controller) connect(freqHz float64) error {
	if err := c.bus.WriteReg(regMode1, mode1Restart); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := c.setFrequency(freqHz); err != nil {
		return err
	}
	if c.oe != nil {
		if err := c.oe.Enable(); err != nil {
			return fmt.Errorf("output enable: %w", err)
		}
	}
	return nil
}

func (c *Controller) setFrequency(freqHz float64) error {
	oldMode, err := c.bus.ReadRegU8(regMode1)
	if err != nil {
		return fmt.Errorf("read mode1: %w", err)
	}
	// The prescaler can only be written while the oscillator sleeps.
	sleepMode := (oldMode &^ mode1Restart) | mode1Sleep
	if err := c.bus.WriteReg(regMode1, sleepMode); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	if err := c.bus.WriteReg(regPrescale, Prescale(freqHz)); err != nil {
		return fmt.Errorf("prescale: %w", err)
	}
	if err := c.bus.WriteReg(regMode1, oldMode); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	sleep(5 * time.Millisecond)
	if err := c.bus.WriteReg(regMode1, oldMode|mode1Restart|mode1AI); err != nil {
		return fmt.Errorf("auto-increment: %w", err)
	}
	c.freqHz = freqHz
	return nil
}

// Frequency is the programmed chip-wide PWM frequency.
func (c *Controller) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freqHz
}

// SetPWM sets the ON and OFF points (0..4095) of one channel's period.
func (c *Controller) SetPWM(channel int, on, off uint16) error {
	if channel < 0 || channel >= NumChannels {
		return fmt.Errorf("%w: channel %d out of range [0, %d)", servo.ErrConfiguration, channel, NumChannels)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(channel, on, off)
}

// SetDutyCycle sets a channel's duty cycle in percent.
func (c *Controller) SetDutyCycle(channel int, percent float64) error {
	if math.IsNaN(percent) {
		return fmt.Errorf("%w: duty cycle is NaN", servo.ErrConfiguration)
	}
	return c.SetPWM(channel, 0, DutyCounts(percent))
}

// ApplySpec writes spec's current pulse duration to its channel, moving the
// servo. Calibration errors come back unwrapped; bus failures as DeviceError.
func (c *Controller) ApplySpec(spec PulseSource) error {
	if spec == nil {
		return fmt.Errorf("%w: spec is nil", servo.ErrConfiguration)
	}
	pulseMs, err := spec.CurrentPulseDuration()
	if err != nil {
		return err
	}
	channel := spec.Channel()
	if channel < 0 || channel >= NumChannels {
		return fmt.Errorf("%w: channel %d out of range [0, %d)", servo.ErrConfiguration, channel, NumChannels)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(channel, 0, EncodeServo(pulseMs, c.freqHz))
}

func (c *Controller) writeLocked(channel int, on, off uint16) error {
	if c.state == stateClosed {
		return &DeviceError{Op: "write", Channel: channel, Err: ErrClosed}
	}
	if err := c.bus.WriteRegs(channelReg(channel), encodeOnOff(on, off)); err != nil {
		c.state = stateFailed
		return &DeviceError{Op: "write", Channel: channel, Err: err}
	}
	return nil
}

// Close resets the chip and releases the bus. Closing twice is a no-op.
//
// A failure closing a healthy handle is returned once. After a transfer has
// already failed, close errors are only logged.
func (c *Controller) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	if prev == stateClosed {
		return nil
	}
	c.state = stateClosed

	err := c.release()
	if err == nil {
		return nil
	}
	if prev == stateFailed {
		c.log.WithError(err).Warn("pca9685: close after device failure")
		return nil
	}
	return &DeviceError{Op: "close", Channel: -1, Err: err}
}

// release puts the chip back to power-on defaults, disables outputs and
// closes the bus. Every step runs; the last error wins.
func (c *Controller) release() error {
	var err error
	if rerr := c.bus.WriteReg(regMode1, mode1Restart); rerr != nil {
		err = fmt.Errorf("reset: %w", rerr)
	}
	if c.oe != nil {
		if oerr := c.oe.Close(); oerr != nil {
			err = fmt.Errorf("output enable: %w", oerr)
		}
	}
	if berr := c.bus.Close(); berr != nil {
		err = fmt.Errorf("bus close: %w", berr)
	}
	return err
}
