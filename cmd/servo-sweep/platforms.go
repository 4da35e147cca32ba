package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"servo-sweep/internal/platform"
)

func NewPlatformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List known boards and their I2C ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLATFORM\tPORT")
			for _, e := range platform.Table() {
				fmt.Fprintf(w, "%s\t%s\n", e.ID, e.Port)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if id, err := detectPlatformFn(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\ndetected: %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "\ndetected: none (%v)\n", err)
			}
			return nil
		},
	}
}
