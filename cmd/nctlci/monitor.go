// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	nctlmon "github.com/efficientgo/nctlci/monitoring"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func registerMonitorFlags(f *pflag.FlagSet) {
	f.String("dir", "", "Directory to write prometheus.yml into. Defaults to the directory of this executable.")
	f.Int("nodes", 5, "Number of local nctl nodes to scrape.")
	f.Int("net", 1, "nctl network id.")
	f.String("generator", "", "External command printing Prometheus configuration to stdout, used instead of built-in nctl targets.")
	f.String("mode", string(nctlmon.ModeExec), "exec replaces this process with docker; child runs docker as a child process.")
	f.Bool("open", false, "In child mode, open Prometheus UI in the browser once it is ready.")
	f.String("docker", "docker", "Docker CLI binary.")
}

// executableDir returns the directory of the running binary, with symlinks resolved.
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "find executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// newLauncher returns launcher configured from layered configuration.
func newLauncher(logger nctlci.Logger, v *viper.Viper) (*nctlmon.Launcher, error) {
	dir := v.GetString("dir")
	if dir == "" {
		d, err := executableDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	var gen nctlmon.Generator = nctlmon.NewNctlTargets(v.GetInt("nodes"), v.GetInt("net"))
	if line := v.GetString("generator"); line != "" {
		c, err := nctlci.ParseCommand(line)
		if err != nil {
			return nil, err
		}
		c.Dir = dir
		gen = nctlmon.NewCommandGenerator(nctlci.NewHostExecutor(logger, true), c)
	}

	opts := []nctlmon.LauncherOption{
		nctlmon.WithMode(nctlmon.Mode(v.GetString("mode"))),
		nctlmon.WithDockerBinary(v.GetString("docker")),
	}
	if v.GetBool("open") {
		opts = append(opts, nctlmon.WithOpenUI(nil))
	}
	return nctlmon.NewLauncher(logger, dir, gen, opts...), nil
}

func newMonitorCommand() *cobra.Command {
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Generate Prometheus configuration for local nctl network and start Prometheus in docker",
		Long: `Writes prometheus.yml next to this executable (or into --dir) and starts prom/prometheus on host network,
publishing 9090 and mounting the generated file read only. In the default exec mode this process is replaced
by docker, so the container exit status is the exit status of the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags(), configFile, envFile)
			if err != nil {
				return err
			}
			logger := nctlci.NewLogger(cmd.ErrOrStderr())
			l, err := newLauncher(logger, v)
			if err != nil {
				return err
			}
			return runInterruptible(cmd.Context(), func(ctx context.Context) error {
				return l.Launch(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file with values for the flags of this command.")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this dotenv file first.")
	registerMonitorFlags(cmd.Flags())
	return cmd
}
