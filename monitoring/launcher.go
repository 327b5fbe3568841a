// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlmon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/efficientgo/core/backoff"
	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/efficientgo/nctlci/host"
	nctlinteractive "github.com/efficientgo/nctlci/interactive"
	"github.com/oklog/run"
)

const (
	Image               = "prom/prometheus"
	ConfigFileName      = "prometheus.yml"
	ContainerConfigPath = "/etc/prometheus/prometheus.yml"
	Port                = 9090
)

// Mode tells how the container process is started.
type Mode string

const (
	// ModeExec replaces the current process with docker. Nothing after successful Launch runs.
	ModeExec Mode = "exec"
	// ModeChild runs docker as a child process until it exits or the context is cancelled.
	ModeChild Mode = "child"
)

// DockerArgs returns docker arguments that start Prometheus on host network with the given configuration file
// mounted read only. They do not depend on anything else on purpose.
func DockerArgs(configPath string) []string {
	return []string{
		"run",
		"--network", "host",
		"-p", fmt.Sprintf("%d:%d", Port, Port),
		"-v", configPath + ":" + ContainerConfigPath + ":ro",
		Image,
	}
}

type launcherOptions struct {
	docker   string
	mode     Mode
	executor nctlci.Executor
	openUI   bool
	opener   func(url string) error

	readyBackoff backoff.Config
	platform     func() string
	lookPath     func(file string) (string, error)
	replace      func(argv0 string, argv []string, envv []string) error
}

// LauncherOption defined the signature of a function used to manipulate launcher options.
type LauncherOption func(*launcherOptions)

// WithDockerBinary sets docker CLI binary name or path. "docker" by default.
func WithDockerBinary(docker string) LauncherOption {
	return func(o *launcherOptions) {
		o.docker = docker
	}
}

// WithMode sets how docker is started. ModeExec by default.
func WithMode(mode Mode) LauncherOption {
	return func(o *launcherOptions) {
		o.mode = mode
	}
}

// WithExecutor sets executor used in ModeChild.
func WithExecutor(e nctlci.Executor) LauncherOption {
	return func(o *launcherOptions) {
		o.executor = e
	}
}

// WithOpenUI opens Prometheus UI in the browser once it is ready. Only used in ModeChild.
func WithOpenUI(opener func(url string) error) LauncherOption {
	return func(o *launcherOptions) {
		o.openUI = true
		if opener != nil {
			o.opener = opener
		}
	}
}

// WithReadyBackoff sets backoff of waiting for Prometheus readiness before opening UI.
func WithReadyBackoff(cfg backoff.Config) LauncherOption {
	return func(o *launcherOptions) {
		o.readyBackoff = cfg
	}
}

// Launcher generates Prometheus configuration next to itself and starts Prometheus container using it.
type Launcher struct {
	logger    nctlci.Logger
	dir       string
	generator Generator
	opts      launcherOptions
}

// NewLauncher creates launcher writing configuration into dir.
func NewLauncher(logger nctlci.Logger, dir string, generator Generator, opts ...LauncherOption) *Launcher {
	o := launcherOptions{
		docker:   "docker",
		mode:     ModeExec,
		executor: nctlci.NewHostExecutor(logger, false),
		opener:   nctlinteractive.OpenInBrowser,
		readyBackoff: backoff.Config{
			Min:        300 * time.Millisecond,
			Max:        600 * time.Millisecond,
			MaxRetries: 100,
		},
		platform: host.OSPlatform,
		lookPath: exec.LookPath,
		replace:  syscall.Exec,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Launcher{logger: logger, dir: dir, generator: generator, opts: o}
}

// ConfigPath returns the path of generated configuration file.
func (l *Launcher) ConfigPath() string {
	return filepath.Join(l.dir, ConfigFileName)
}

// WriteConfig generates configuration and atomically writes it to ConfigPath. It returns the absolute path of it.
// Empty configuration is an error and leaves the previous file untouched.
func (l *Launcher) WriteConfig(ctx context.Context) (string, error) {
	b, err := l.generator.Generate(ctx)
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return "", errors.New("generator produced empty prometheus configuration")
	}

	path, err := filepath.Abs(l.ConfigPath())
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return "", errors.Wrap(err, "write prometheus config")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "write prometheus config")
	}
	l.logger.Log("Generated", path)
	return path, nil
}

// Launch generates configuration and starts Prometheus. In ModeExec it does not return on success.
func (l *Launcher) Launch(ctx context.Context) error {
	if p := l.opts.platform(); !host.SupportsDockerHostNetwork(p) {
		l.logger.Log("WARNING: docker host networking is supported only on linux; Prometheus won't reach local nodes on", p)
	}

	path, err := l.WriteConfig(ctx)
	if err != nil {
		return err
	}

	cmd := nctlci.NewCommand(l.opts.docker, DockerArgs(path)...)
	switch l.opts.mode {
	case ModeExec:
		return l.replaceProcess(cmd)
	case ModeChild:
		return l.runChild(ctx, cmd)
	default:
		return errors.Newf("unknown launch mode %q", l.opts.mode)
	}
}

func (l *Launcher) replaceProcess(cmd nctlci.Command) error {
	bin, err := l.opts.lookPath(cmd.Cmd)
	if err != nil {
		return &nctlci.ExitError{Command: cmd, Code: nctlci.ExitCodeNotFound, Err: errors.Wrapf(err, "find %v", cmd.Cmd)}
	}

	l.logger.Log("exec:", cmd.String())
	argv := append([]string{cmd.Cmd}, cmd.Args...)
	if err := l.opts.replace(bin, argv, os.Environ()); err != nil {
		return errors.Wrapf(err, "exec %v", bin)
	}
	return nil
}

func (l *Launcher) runChild(ctx context.Context, cmd nctlci.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := run.Group{}
	g.Add(func() error {
		return l.opts.executor.Exec(ctx, cmd)
	}, func(error) {
		cancel()
	})
	if l.opts.openUI {
		g.Add(func() error {
			endpoint := fmt.Sprintf("localhost:%d", Port)
			w := nctlci.NewProbeWaiter(l.logger, l.opts.readyBackoff, nctlci.NewHTTPReadinessProbe(endpoint, "/-/ready", 200, 200))
			if err := w.Wait(ctx); err != nil {
				l.logger.Log("Prometheus did not become ready, not opening UI:", err)
			} else if err := l.opts.opener("http://" + endpoint); err != nil {
				l.logger.Log("Unable to open UI:", err)
			}
			<-ctx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}
	return g.Run()
}
