package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logLevel   = "info"
	configPath = ""

	portOverride      = ""
	platformOverride  = ""
	transportOverride = ""
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servo-sweep",
		Short: "servo-sweep drives hobby servos through a PCA9685 PWM controller",
		Long: `servo-sweep drives hobby servos through a PCA9685 PWM controller.

It maps angles onto pulse widths, writes them to the controller over I2C and
sweeps every configured channel across its range on a fixed interval.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&portOverride, "port", "", "I2C port name or device path, e.g. I2C1 or /dev/i2c-1")
	cmd.PersistentFlags().StringVar(&platformOverride, "platform", "", "board identifier used to pick the I2C port (see 'platforms')")
	cmd.PersistentFlags().StringVar(&transportOverride, "transport", "", "I2C transport: dev or periph")

	cmd.AddCommand(
		NewRunCommand(),
		NewSetCommand(),
		NewPlatformsCommand(),
	)

	return cmd
}
