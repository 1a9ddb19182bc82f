// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command recorder captures continuous CSV training data from a sampling
// board on a USB serial port.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/stroke_classifier/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := app.DefaultRecorderOptions()

	cmd := &cobra.Command{
		Use:          "recorder <file.csv>",
		Short:        "Record IMU samples from a sampling board into a CSV file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Output = args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunRecorder(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Port, "port", "p", "", "serial device (default: probe /dev/ttyACM*, /dev/ttyUSB*)")
	flags.IntVarP(&opts.Baud, "baud", "b", opts.Baud, "serial baud rate")
	flags.BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing file")
	flags.DurationVar(&opts.MaxDuration, "max-duration", opts.MaxDuration, "stop recording after this long")
	flags.IntVar(&opts.StartAttempts, "start-attempts", opts.StartAttempts, "START commands sent before giving up")
	flags.DurationVar(&opts.SettleDelay, "settle", opts.SettleDelay, "wait after opening the port for the board to reset")

	return cmd
}
