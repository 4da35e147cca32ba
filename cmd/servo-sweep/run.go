package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"servo-sweep/internal/config"
	"servo-sweep/internal/sweep"
)

func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sweep every configured servo across its range until interrupted",
		Long: `Sweep every configured servo across its range until interrupted.

Each tick moves all channels to their current angle, then advances every angle
by the configured step, wrapping to the minimum after passing the maximum.
A bus failure stops the sweep and releases the controller.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSweep(ctx, cfg, logrus.StandardLogger())
		},
	}
}

// runSweep owns one session: open, sweep until ctx ends or a tick fails,
// release the controller.
func runSweep(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	specs, err := buildSpecs(cfg.Servo)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}

	ctrl, err := openController(cfg, log)
	if err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}

	sched, err := sweep.New(ctrl, specs, sweep.Config{
		Step:   cfg.Sweep.StepDeg,
		Delay:  cfg.Sweep.Interval,
		Logger: log,
	})
	if err != nil {
		_ = ctrl.Close()
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}

	log.WithFields(logrus.Fields{
		"channels": cfg.Servo.Channels,
		"step_deg": cfg.Sweep.StepDeg,
		"interval": cfg.Sweep.Interval,
	}).Info("sweep starting")

	if err := sched.Start(ctx); err != nil {
		sched.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("sweep stopping")
		sched.Stop()
	case <-sched.Done():
	}

	if err := sched.Err(); err != nil {
		return fmt.Errorf("%s error: %w", errorKind(err), err)
	}
	if err := sched.CloseErr(); err != nil {
		log.WithError(err).Warn("controller close failed")
	}
	snap := sched.Snapshot()
	log.WithField("ticks", snap.Ticks).Info("sweep stopped")
	return nil
}
