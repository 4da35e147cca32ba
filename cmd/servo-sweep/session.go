package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"servo-sweep/internal/config"
	"servo-sweep/internal/gpio"
	"servo-sweep/internal/i2c"
	"servo-sweep/internal/pca9685"
	"servo-sweep/internal/periphbus"
	"servo-sweep/internal/platform"
	"servo-sweep/internal/servo"
)

var (
	detectPlatformFn = platform.Detect
	openBusFn        = openBus
	openOutputEnable = gpio.Open
)

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("config load failed: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if portOverride != "" {
		cfg.Bus.Port = portOverride
	}
	if platformOverride != "" {
		cfg.Bus.Platform = platformOverride
	}
	if transportOverride != "" {
		cfg.Bus.Transport = transportOverride
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolvePort picks the bus port: an explicit port wins, then the platform
// table, then device-tree detection.
func resolvePort(cfg config.BusConfig) (string, error) {
	if cfg.Port != "" {
		return cfg.Port, nil
	}
	id := cfg.Platform
	if id == "" || id == config.PlatformAuto {
		detected, err := detectPlatformFn()
		if err != nil {
			return "", err
		}
		id = detected
	}
	return platform.ResolvePort(id)
}

func openBus(cfg config.BusConfig, port string) (pca9685.RegBus, error) {
	switch cfg.Transport {
	case config.TransportPeriph:
		return periphbus.Open(port, cfg.Address)
	default:
		bus, err := i2c.OpenPort(port)
		if err != nil {
			return nil, err
		}
		return bus.Dev(cfg.Address), nil
	}
}

// openController resolves the port and opens the controller. Port resolution
// happens before any hardware is touched.
func openController(cfg config.Config, log logrus.FieldLogger) (*pca9685.Controller, error) {
	port, err := resolvePort(cfg.Bus)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(logrus.Fields{
		"port":      port,
		"transport": cfg.Bus.Transport,
		"address":   fmt.Sprintf("0x%02X", cfg.Bus.Address),
	})

	bus, err := openBusFn(cfg.Bus, port)
	if err != nil {
		return nil, &pca9685.DeviceError{Op: "open", Channel: -1, Err: err}
	}

	var oe gpio.OutputEnable
	if cfg.OutputEnable.Enable {
		oe, err = openOutputEnable(gpio.Config{Chip: cfg.OutputEnable.Chip, Line: cfg.OutputEnable.Line})
		if err != nil {
			_ = bus.Close()
			return nil, &pca9685.DeviceError{Op: "open", Channel: -1, Err: err}
		}
	}

	ctrl, err := pca9685.Open(bus, pca9685.Config{
		FrequencyHz:  cfg.Bus.FrequencyHz,
		OutputEnable: oe,
		Logger:       log,
	})
	if err != nil {
		if oe != nil {
			_ = oe.Close()
		}
		return nil, err
	}
	log.Info("pca9685 opened")
	return ctrl, nil
}

func newSpec(sc config.ServoConfig, channel int) (*servo.Spec, error) {
	s, err := servo.NewSpec(channel)
	if err != nil {
		return nil, err
	}
	if err := s.SetPulseDurationRange(sc.MinPulseMs, sc.MaxPulseMs); err != nil {
		return nil, err
	}
	if err := s.SetAngleRange(sc.MinAngleDeg, sc.MaxAngleDeg); err != nil {
		return nil, err
	}
	if sc.InitialAngleDeg != nil {
		if _, err := s.SetAngleChecked(*sc.InitialAngleDeg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func buildSpecs(sc config.ServoConfig) ([]*servo.Spec, error) {
	specs := make([]*servo.Spec, 0, len(sc.Channels))
	for _, ch := range sc.Channels {
		s, err := newSpec(sc, ch)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// errorKind names the class of a session error for the user.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, platform.ErrUnknownPlatform):
		return "unknown platform"
	case pca9685.IsDeviceError(err):
		return "device"
	case errors.Is(err, servo.ErrConfiguration):
		return "configuration"
	}
	return "internal"
}
