// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlsmoke

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
)

// WaitMode tells how the runner waits for the started network.
type WaitMode string

const (
	// WaitSleep sleeps for Config.WaitDuration. Nothing is checked.
	WaitSleep WaitMode = "sleep"
	// WaitProbe polls REST status endpoints of all nodes (or node metric, if configured) until they are ready.
	WaitProbe WaitMode = "probe"
)

const (
	DefaultMarker         = "DRONE"
	DefaultRoot           = "/drone/src"
	DefaultActivateScript = "utils/nctl/activate"
	DefaultScenariosDir   = "utils/nctl/sh/scenarios"
	DefaultScenario       = "sync_test.sh"
	DefaultLauncherRepo   = "https://github.com/casper-network/casper-node-launcher.git"
	DefaultLauncherDir    = "/drone/casper-node-launcher"
	DefaultWaitDuration   = 60 * time.Second
)

// Config describes a single smoke run. Zero values are not defaults, use DefaultConfig.
type Config struct {
	// Marker is the environment variable that has to be set (non-empty) for the run to proceed.
	Marker string `mapstructure:"marker"`

	Root           string `mapstructure:"root"`
	ActivateScript string `mapstructure:"activate-script"`
	ScenariosDir   string `mapstructure:"scenarios-dir"`
	Scenario       string `mapstructure:"scenario"`
	Nodes          int    `mapstructure:"nodes"`
	// Timeout is passed to the scenario as is, in seconds.
	Timeout   int `mapstructure:"timeout"`
	NetworkID int `mapstructure:"net"`

	LauncherRepo string `mapstructure:"launcher-repo"`
	LauncherDir  string `mapstructure:"launcher-dir"`

	Wait         WaitMode      `mapstructure:"wait"`
	WaitDuration time.Duration `mapstructure:"wait-duration"`
	// ReadyMetric switches probe wait from REST status to metric condition of every node, e.g. "chain_height>=10".
	// Bare metric name means greater than zero. See nctlci.ParseMetricCondition.
	ReadyMetric string `mapstructure:"ready-metric"`

	CleanupOnFailure bool `mapstructure:"cleanup-on-failure"`

	// MetricsTextfile is where the run report is written in the Prometheus text format, if not empty.
	MetricsTextfile string `mapstructure:"metrics-textfile"`
}

func DefaultConfig() Config {
	return Config{
		Marker:         DefaultMarker,
		Root:           DefaultRoot,
		ActivateScript: DefaultActivateScript,
		ScenariosDir:   DefaultScenariosDir,
		Scenario:       DefaultScenario,
		Nodes:          6,
		Timeout:        500,
		NetworkID:      1,
		LauncherRepo:   DefaultLauncherRepo,
		LauncherDir:    DefaultLauncherDir,
		Wait:           WaitSleep,
		WaitDuration:   DefaultWaitDuration,
	}
}

func (c Config) Validate() error {
	if c.Marker == "" {
		return errors.New("marker variable name can't be empty")
	}
	if c.Root == "" || c.LauncherDir == "" || c.LauncherRepo == "" {
		return errors.New("root, launcher directory and launcher repository are required")
	}
	if c.Nodes <= 0 {
		return errors.Newf("nodes has to be positive, got %d", c.Nodes)
	}
	if c.Timeout <= 0 {
		return errors.Newf("timeout has to be positive, got %d", c.Timeout)
	}
	switch c.Wait {
	case WaitSleep:
		if c.WaitDuration < 0 {
			return errors.Newf("negative wait duration %v", c.WaitDuration)
		}
	case WaitProbe:
		if c.NetworkID <= 0 {
			return errors.Newf("network id has to be positive, got %d", c.NetworkID)
		}
		if c.ReadyMetric != "" {
			if _, _, err := nctlci.ParseMetricCondition(c.ReadyMetric); err != nil {
				return errors.Wrap(err, "ready metric")
			}
		}
	default:
		return errors.Newf("unknown wait mode %q", c.Wait)
	}
	return nil
}

// ScenarioPath returns the absolute path of the scenario script.
func (c Config) ScenarioPath() string {
	p := c.Scenario
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Root, c.ScenariosDir, p)
	}
	return p
}

// ScenarioArgs returns scenario arguments in the key=value form nctl scenarios expect.
func (c Config) ScenarioArgs() []string {
	return nctlci.BuildArgs(map[string]string{
		"node":    strconv.Itoa(c.Nodes),
		"timeout": strconv.Itoa(c.Timeout),
	})
}
