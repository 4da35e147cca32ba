package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"servo-sweep/internal/config"
	"servo-sweep/internal/pca9685"
	"servo-sweep/internal/servo"
)

func NewSetCommand() *cobra.Command {
	var (
		channel int
		angle   float64
		pulseMs float64
		duty    float64
		hold    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Move one servo to an angle (or pulse width, or raw duty cycle) once",
		Example: `  servo-sweep set --channel 0 --angle 45
  servo-sweep set --channel 3 --pulse-ms 1.2 --hold 3s
  servo-sweep set --channel 8 --duty 25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := 0
			for _, f := range []string{"angle", "pulse-ms", "duty"} {
				if cmd.Flags().Changed(f) {
					n++
				}
			}
			if n != 1 {
				return fmt.Errorf("exactly one of --angle, --pulse-ms or --duty is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			target := setTarget{channel: channel, angle: angle, hold: hold}
			if cmd.Flags().Changed("duty") {
				return setDutyOnce(cfg, channel, duty, hold, logrus.StandardLogger())
			}
			if cmd.Flags().Changed("pulse-ms") {
				target.pulseMs = &pulseMs
			}
			return setOnce(cfg, target, logrus.StandardLogger())
		},
	}

	cmd.Flags().IntVar(&channel, "channel", 0, "PWM channel (0-15)")
	cmd.Flags().Float64Var(&angle, "angle", 0, "target angle in degrees (clamped to the configured range)")
	cmd.Flags().Float64Var(&pulseMs, "pulse-ms", 0, "target pulse width in milliseconds")
	cmd.Flags().Float64Var(&duty, "duty", 0, "raw duty cycle in percent (0-100), bypassing servo calibration")
	cmd.Flags().DurationVar(&hold, "hold", time.Second, "how long to hold the position before releasing the controller")

	return cmd
}

type setTarget struct {
	channel int
	angle   float64
	pulseMs *float64
	hold    time.Duration
}

var sleepFn = time.Sleep

func setOnce(cfg config.Config, target setTarget, log logrus.FieldLogger) error {
	spec, err := newSpec(cfg.Servo, target.channel)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}
	angle := target.angle
	if target.pulseMs != nil {
		angle, err = servo.ToAngle(*target.pulseMs, spec.Calibration())
		if err != nil {
			return fmt.Errorf("%s error: %w", errorKind(err), err)
		}
	}
	stored, err := spec.SetAngleChecked(angle)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}
	if stored != angle {
		log.WithFields(logrus.Fields{"requested": angle, "clamped": stored}).Warn("angle clamped to configured range")
	}

	ctrl, err := openController(cfg, log)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}
	applyErr := ctrl.ApplySpec(spec)
	if applyErr == nil {
		pulse, _ := spec.CurrentPulseDuration()
		log.WithFields(logrus.Fields{
			"channel":  spec.Channel(),
			"angle":    stored,
			"pulse_ms": pulse,
		}).Info("servo moved")
		sleepFn(target.hold)
	}
	closeErr := ctrl.Close()
	if applyErr != nil {
		return fmt.Errorf("%s error: %w", errorKind(applyErr), applyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%s error: %w", errorKind(closeErr), closeErr)
	}
	return nil
}

// setDutyOnce writes a raw duty cycle to one channel, for non-servo loads or
// checking the output with a scope.
func setDutyOnce(cfg config.Config, channel int, percent float64, hold time.Duration, log logrus.FieldLogger) error {
	ctrl, err := openController(cfg, log)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}
	dutyErr := ctrl.SetDutyCycle(channel, percent)
	if dutyErr == nil {
		log.WithFields(logrus.Fields{
			"channel":  channel,
			"duty_pct": percent,
			"counts":   pca9685.DutyCounts(percent),
		}).Info("duty cycle set")
		sleepFn(hold)
	}
	closeErr := ctrl.Close()
	if dutyErr != nil {
		return fmt.Errorf("%s error: %w", errorKind(dutyErr), dutyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%s error: %w", errorKind(closeErr), closeErr)
	}
	return nil
}
