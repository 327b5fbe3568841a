// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/testutil"
	"github.com/efficientgo/nctlci"
	nctlsmoke "github.com/efficientgo/nctlci/smoke"
	"github.com/oklog/run"
	"github.com/spf13/pflag"
)

func TestSmokeConfig_Defaults(t *testing.T) {
	f := pflag.NewFlagSet("smoke", pflag.ContinueOnError)
	registerSmokeFlags(f)
	testutil.Ok(t, f.Parse(nil))

	v, err := newViper(f, "", "")
	testutil.Ok(t, err)
	cfg, err := smokeConfig(v)
	testutil.Ok(t, err)
	testutil.Equals(t, nctlsmoke.DefaultConfig(), cfg)
}

func TestSmokeConfig_Layers(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "smoke.yaml")
	testutil.Ok(t, os.WriteFile(configFile, []byte(`
root: /srv/casper-node
nodes: 3
timeout: 100
wait: probe
wait-duration: 10s
`), 0600))
	envFile := filepath.Join(dir, ".env")
	testutil.Ok(t, os.WriteFile(envFile, []byte("NCTLCI_TIMEOUT=200\nNCTLCI_LAUNCHER_DIR=/tmp/launcher\n"), 0600))
	t.Cleanup(func() {
		_ = os.Unsetenv("NCTLCI_TIMEOUT")
		_ = os.Unsetenv("NCTLCI_LAUNCHER_DIR")
	})

	f := pflag.NewFlagSet("smoke", pflag.ContinueOnError)
	registerSmokeFlags(f)
	testutil.Ok(t, f.Parse([]string{"--nodes=4", "--cleanup-on-failure"}))

	v, err := newViper(f, configFile, envFile)
	testutil.Ok(t, err)
	cfg, err := smokeConfig(v)
	testutil.Ok(t, err)

	exp := nctlsmoke.DefaultConfig()
	exp.Root = "/srv/casper-node"     // File.
	exp.Nodes = 4                     // Flag over file.
	exp.Timeout = 200                 // Env over file.
	exp.LauncherDir = "/tmp/launcher" // Env over flag default.
	exp.Wait = nctlsmoke.WaitProbe
	exp.WaitDuration = 10 * time.Second
	exp.CleanupOnFailure = true
	testutil.Equals(t, exp, cfg)
}

func TestSmokeConfig_Errors(t *testing.T) {
	f := pflag.NewFlagSet("smoke", pflag.ContinueOnError)
	registerSmokeFlags(f)
	testutil.Ok(t, f.Parse([]string{"--wait=poll"}))

	v, err := newViper(f, "", "")
	testutil.Ok(t, err)
	_, err = smokeConfig(v)
	testutil.NotOk(t, err)

	_, err = newViper(f, filepath.Join(t.TempDir(), "missing.yaml"), "")
	testutil.NotOk(t, err)
	_, err = newViper(f, "", filepath.Join(t.TempDir(), "missing.env"))
	testutil.NotOk(t, err)
}

func TestNewLauncher(t *testing.T) {
	f := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	registerMonitorFlags(f)
	dir := t.TempDir()
	testutil.Ok(t, f.Parse([]string{"--dir=" + dir, "--generator=cat 'static prometheus.yml'"}))

	v, err := newViper(f, "", "")
	testutil.Ok(t, err)
	l, err := newLauncher(nctlci.NewLogger(io.Discard), v)
	testutil.Ok(t, err)
	testutil.Equals(t, filepath.Join(dir, "prometheus.yml"), l.ConfigPath())

	testutil.Ok(t, f.Set("generator", "'unterminated"))
	_, err = newLauncher(nctlci.NewLogger(io.Discard), v)
	testutil.NotOk(t, err)
}

func TestRootCommand_SmokeWithoutMarker(t *testing.T) {
	t.Setenv("DRONE", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"smoke", "--launcher-dir", filepath.Join(t.TempDir(), "launcher")})
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	testutil.NotOk(t, err)
	testutil.Assert(t, errors.Is(err, nctlci.ErrPrecondition))
	testutil.Equals(t, 1, exitCode(err))
}

func TestRootCommand_SmokeWithoutMarkerCreatesNothing(t *testing.T) {
	t.Setenv("DRONE", "")
	dir := t.TempDir()
	logFile := filepath.Join(dir, "smoke.log")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"smoke", "--log-file", logFile, "--launcher-dir", filepath.Join(dir, "launcher")})
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	testutil.Equals(t, 1, exitCode(err))

	_, err = os.Stat(logFile)
	testutil.Assert(t, os.IsNotExist(err), "log file should not be created, got %v", err)
}

func TestExitCode(t *testing.T) {
	testutil.Equals(t, 0, exitCode(nil))
	testutil.Equals(t, 130, exitCode(run.SignalError{Signal: syscall.SIGINT}))
	testutil.Equals(t, 143, exitCode(run.SignalError{Signal: syscall.SIGTERM}))
	testutil.Equals(t, 3, exitCode(&nctlci.ExitError{Code: 3, Err: errors.New("exit status 3")}))

	err := runInterruptible(context.Background(), func(ctx context.Context) error {
		return &nctlci.ExitError{Code: 4, Err: errors.New("exit status 4")}
	})
	testutil.Equals(t, 4, exitCode(err))
}
