// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nctlci",
		Short:         "CI utilities for local nctl networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(newSmokeCommand(), newMonitorCommand())
	return root
}

// runInterruptible runs f until it returns or the process gets SIGINT or SIGTERM.
func runInterruptible(ctx context.Context, f func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := run.Group{}
	g.Add(func() error {
		return f(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	return g.Run()
}

// exitCode is nctlci.ExitCode that also maps interrupts to 128+signal, as shells do.
func exitCode(err error) int {
	var serr run.SignalError
	if errors.As(err, &serr) {
		if s, ok := serr.Signal.(syscall.Signal); ok {
			return 128 + int(s)
		}
	}
	return nctlci.ExitCode(err)
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "nctlci:", err)
	}
	os.Exit(exitCode(err))
}
