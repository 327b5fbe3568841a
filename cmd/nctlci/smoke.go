// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/efficientgo/nctlci/internal/s3"
	nctlsmoke "github.com/efficientgo/nctlci/smoke"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func registerSmokeFlags(f *pflag.FlagSet) {
	def := nctlsmoke.DefaultConfig()
	f.String("marker", def.Marker, "Environment variable that has to be set for the run to proceed.")
	f.String("root", def.Root, "Root source directory with nctl utilities.")
	f.String("activate-script", def.ActivateScript, "nctl activation script, relative to root.")
	f.String("scenarios-dir", def.ScenariosDir, "nctl scenarios directory, relative to root.")
	f.String("scenario", def.Scenario, "Scenario script to source.")
	f.Int("nodes", def.Nodes, "Number of nodes the scenario targets.")
	f.Int("timeout", def.Timeout, "Scenario timeout in seconds, passed to the scenario.")
	f.Int("net", def.NetworkID, "nctl network id, used for probing node endpoints.")
	f.String("launcher-repo", def.LauncherRepo, "Node launcher git repository.")
	f.String("launcher-dir", def.LauncherDir, "Directory the launcher repository is cloned into. Removed on success.")
	f.String("wait", string(def.Wait), "How to wait for the started network: sleep or probe.")
	f.Duration("wait-duration", def.WaitDuration, "How long to sleep in sleep wait mode.")
	f.String("ready-metric", def.ReadyMetric, "In probe wait mode, wait for node metric condition instead of REST status, e.g. chain_height>=10. Bare metric name means >0.")
	f.Bool("cleanup-on-failure", def.CleanupOnFailure, "Remove launcher directory also when the run fails.")
	f.String("metrics-textfile", def.MetricsTextfile, "Write run report in Prometheus text format to this file.")
}

// smokeConfig returns the runner config from layered configuration.
func smokeConfig(v *viper.Viper) (nctlsmoke.Config, error) {
	cfg := nctlsmoke.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nctlsmoke.Config{}, errors.Wrap(err, "unmarshal smoke config")
	}
	return cfg, cfg.Validate()
}

func newSmokeCommand() *cobra.Command {
	var (
		configFile, envFile string
		logFile             string
		s3Config, s3Dir     string
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run nctl smoke test: start local network, sync scenario, teardown",
		Long: `Clones node launcher, starts local nctl network from the root directory, waits for it and
runs the sync scenario against it. Everything is torn down on success. The first failing step stops the run
and its exit status becomes the exit status of this command.

Runs only when the marker variable (DRONE by default) is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags(), configFile, envFile)
			if err != nil {
				return err
			}
			cfg, err := smokeConfig(v)
			if err != nil {
				return err
			}
			// Outside of CI nothing is created, not even the log file.
			if err := nctlsmoke.CheckMarker(cfg.Marker, os.LookupEnv); err != nil {
				return err
			}

			var out io.Writer = cmd.ErrOrStderr()
			if logFile != "" {
				f, err := os.Create(logFile)
				if err != nil {
					return errors.Wrapf(err, "create log file %v", logFile)
				}
				defer func() { _ = f.Close() }()
				out = io.MultiWriter(out, f)
			}
			logger := nctlci.NewLogger(out)

			var opts []nctlsmoke.RunnerOption
			if s3Config != "" {
				b, err := os.ReadFile(s3Config)
				if err != nil {
					return errors.Wrapf(err, "read s3 config %v", s3Config)
				}
				bkt, err := s3.NewBucket(logger, b)
				if err != nil {
					return err
				}
				if s3Dir == "" {
					s3Dir = "smoke-" + time.Now().UTC().Format("20060102T150405Z")
				}
				var files []string
				if logFile != "" {
					files = append(files, logFile)
				}
				opts = append(opts, nctlsmoke.WithArtifactUpload(bkt, s3Dir, files...))
			}

			return runInterruptible(cmd.Context(), func(ctx context.Context) error {
				return nctlsmoke.NewRunner(logger, cfg, opts...).Run(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file with values for the flags of this command.")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this dotenv file first.")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write the run log into this file.")
	cmd.Flags().StringVar(&s3Config, "s3-config", "", "YAML s3 bucket config. When set, the log file and metrics textfile are uploaded after the run.")
	cmd.Flags().StringVar(&s3Dir, "s3-dir", "", "Bucket directory for uploaded artifacts. Defaults to smoke-<UTC timestamp>.")
	registerSmokeFlags(cmd.Flags())
	return cmd
}
