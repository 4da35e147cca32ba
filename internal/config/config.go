package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"servo-sweep/internal/pca9685"
)

type Config struct {
	Bus          BusConfig          `yaml:"bus"`
	Servo        ServoConfig        `yaml:"servo"`
	Sweep        SweepConfig        `yaml:"sweep"`
	OutputEnable OutputEnableConfig `yaml:"output_enable"`
}

type BusConfig struct {
	// Platform selects the port from the board table. Empty or "auto" reads
	// the device-tree model. Ignored when Port is set.
	Platform string `yaml:"platform"`
	// Port is a bus name such as "I2C1" or a path such as "/dev/i2c-1".
	Port string `yaml:"port"`
	// Transport is "dev" (Linux /dev/i2c-N) or "periph" (periph.io host drivers).
	Transport   string  `yaml:"transport"`
	Address     uint16  `yaml:"address"`
	FrequencyHz float64 `yaml:"frequency_hz"`
}

type ServoConfig struct {
	MinPulseMs      float64  `yaml:"min_pulse_ms"`
	MaxPulseMs      float64  `yaml:"max_pulse_ms"`
	MinAngleDeg     float64  `yaml:"min_angle_deg"`
	MaxAngleDeg     float64  `yaml:"max_angle_deg"`
	InitialAngleDeg *float64 `yaml:"initial_angle_deg"`
	Channels        []int    `yaml:"channels"`
}

type SweepConfig struct {
	StepDeg  float64       `yaml:"step_deg"`
	Interval time.Duration `yaml:"interval"`
}

type OutputEnableConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Line   string `yaml:"line"`
}

const (
	TransportDev    = "dev"
	TransportPeriph = "periph"

	PlatformAuto = "auto"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// DefaultAndValidate fills zero values with defaults and rejects invalid
// combinations. Error messages name the offending YAML key.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Bus.Platform = strings.ToLower(strings.TrimSpace(cfg.Bus.Platform))
	if cfg.Bus.Platform == "" {
		cfg.Bus.Platform = PlatformAuto
	}
	cfg.Bus.Port = strings.TrimSpace(cfg.Bus.Port)
	cfg.Bus.Transport = strings.ToLower(strings.TrimSpace(cfg.Bus.Transport))
	if cfg.Bus.Transport == "" {
		cfg.Bus.Transport = TransportDev
	}
	switch cfg.Bus.Transport {
	case TransportDev, TransportPeriph:
	default:
		return fmt.Errorf("bus.transport must be '%s' or '%s'", TransportDev, TransportPeriph)
	}
	if cfg.Bus.Address == 0 {
		cfg.Bus.Address = 0x40
	}
	if cfg.Bus.Address > 0x7F {
		return fmt.Errorf("bus.address must be a 7-bit address")
	}
	if cfg.Bus.FrequencyHz == 0 {
		cfg.Bus.FrequencyHz = 50
	}
	if cfg.Bus.FrequencyHz < 0 || cfg.Bus.FrequencyHz > 1600 {
		return fmt.Errorf("bus.frequency_hz must be in (0, 1600]")
	}

	if cfg.Servo.MinPulseMs == 0 && cfg.Servo.MaxPulseMs == 0 {
		cfg.Servo.MinPulseMs = 1.0
		cfg.Servo.MaxPulseMs = 2.0
	}
	for key, v := range map[string]float64{
		"servo.min_pulse_ms":  cfg.Servo.MinPulseMs,
		"servo.max_pulse_ms":  cfg.Servo.MaxPulseMs,
		"servo.min_angle_deg": cfg.Servo.MinAngleDeg,
		"servo.max_angle_deg": cfg.Servo.MaxAngleDeg,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", key)
		}
	}
	if cfg.Servo.MinPulseMs <= 0 {
		return fmt.Errorf("servo.min_pulse_ms must be > 0")
	}
	if cfg.Servo.MinPulseMs >= cfg.Servo.MaxPulseMs {
		return fmt.Errorf("servo.min_pulse_ms must be less than servo.max_pulse_ms")
	}
	if period := 1000 / cfg.Bus.FrequencyHz; cfg.Servo.MaxPulseMs > period {
		return fmt.Errorf("servo.max_pulse_ms must not exceed the pwm period (%.3g ms)", period)
	}
	if cfg.Servo.MinAngleDeg == 0 && cfg.Servo.MaxAngleDeg == 0 {
		cfg.Servo.MaxAngleDeg = 180
	}
	if cfg.Servo.MinAngleDeg >= cfg.Servo.MaxAngleDeg {
		return fmt.Errorf("servo.min_angle_deg must be less than servo.max_angle_deg")
	}
	if math.IsInf(cfg.Servo.MaxAngleDeg-cfg.Servo.MinAngleDeg, 0) {
		return fmt.Errorf("servo.max_angle_deg - servo.min_angle_deg must be finite")
	}
	if cfg.Servo.InitialAngleDeg != nil && math.IsNaN(*cfg.Servo.InitialAngleDeg) {
		return fmt.Errorf("servo.initial_angle_deg must be a number")
	}
	if cfg.Servo.InitialAngleDeg == nil {
		mid := cfg.Servo.MinAngleDeg + (cfg.Servo.MaxAngleDeg-cfg.Servo.MinAngleDeg)/2
		cfg.Servo.InitialAngleDeg = &mid
	}
	if len(cfg.Servo.Channels) == 0 {
		cfg.Servo.Channels = []int{0, 1}
	}
	seen := make(map[int]bool, len(cfg.Servo.Channels))
	for _, ch := range cfg.Servo.Channels {
		if ch < 0 || ch >= pca9685.NumChannels {
			return fmt.Errorf("servo.channels entries must be in [0, %d)", pca9685.NumChannels)
		}
		if seen[ch] {
			return fmt.Errorf("servo.channels contains duplicate channel %d", ch)
		}
		seen[ch] = true
	}

	if cfg.Sweep.StepDeg == 0 {
		cfg.Sweep.StepDeg = 30
	}
	if !(cfg.Sweep.StepDeg > 0) || math.IsInf(cfg.Sweep.StepDeg, 0) {
		return fmt.Errorf("sweep.step_deg must be > 0")
	}
	if cfg.Sweep.Interval < 0 {
		return fmt.Errorf("sweep.interval must be > 0")
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 5 * time.Second
	}

	if cfg.OutputEnable.Enable && strings.TrimSpace(cfg.OutputEnable.Line) == "" {
		return fmt.Errorf("output_enable.line is required when output_enable.enable is true")
	}

	return nil
}
