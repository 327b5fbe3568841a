// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/kballard/go-shellquote"
)

const defaultShell = "bash"

// ShellSession runs commands in bash started from a fixed directory that sources an activation script first.
// Functions and aliases defined by the script (e.g. nctl-start) are therefore available to every command.
// Every command gets its own shell process; nothing but the activation script is shared between them.
type ShellSession struct {
	exec     Executor
	shell    string
	dir      string
	activate string
}

// ShellSessionOption defined the signature of a function used to manipulate session options.
type ShellSessionOption func(*ShellSession)

// WithShell sets the shell binary, "bash" by default. It has to understand `shopt` and `source`.
func WithShell(shell string) ShellSessionOption {
	return func(s *ShellSession) {
		s.shell = shell
	}
}

// NewShellSession creates a session rooted at dir. Relative activate script path is resolved against dir.
func NewShellSession(e Executor, dir, activateScript string, opts ...ShellSessionOption) *ShellSession {
	if !filepath.IsAbs(activateScript) {
		activateScript = filepath.Join(dir, activateScript)
	}
	s := &ShellSession{exec: e, shell: defaultShell, dir: dir, activate: activateScript}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ShellSession) Dir() string { return s.dir }

func (s *ShellSession) ActivateScript() string { return s.activate }

// Script returns the shell script that runs given lines in the activated environment.
// Lines are separated by new lines, so aliases defined by the activation script are expanded.
func (s *ShellSession) Script(lines ...string) string {
	b := strings.Builder{}
	b.WriteString("set -e\n")
	b.WriteString("shopt -s expand_aliases\n")
	b.WriteString(shellquote.Join("source", s.activate) + "\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	return b.String()
}

// Command returns the command that runs given lines in the activated environment.
func (s *ShellSession) Command(lines ...string) Command {
	return Command{
		Cmd:  s.shell,
		Args: []string{"-c", s.Script(lines...)},
		Dir:  s.dir,
	}
}

// Activate checks that the root directory and the activation script exist and that the script can be sourced.
func (s *ShellSession) Activate(ctx context.Context, opts ...ExecOption) error {
	if fi, err := os.Stat(s.dir); err != nil {
		return errors.Wrapf(err, "root directory %v", s.dir)
	} else if !fi.IsDir() {
		return errors.Newf("root %v is not a directory", s.dir)
	}
	if _, err := os.Stat(s.activate); err != nil {
		return errors.Wrapf(err, "activation script %v", s.activate)
	}
	return s.exec.Exec(ctx, s.Command(), opts...)
}

// Run runs a single line in the activated environment, e.g. `nctl-compile`.
func (s *ShellSession) Run(ctx context.Context, line string, opts ...ExecOption) error {
	return s.exec.Exec(ctx, s.Command(line), opts...)
}

// Source sources given script with positional arguments in the activated environment.
// This is how nctl scenarios are invoked, e.g. `source sync_test.sh node=6 timeout=500`.
func (s *ShellSession) Source(ctx context.Context, script string, args []string, opts ...ExecOption) error {
	return s.Run(ctx, shellquote.Join(append([]string{"source", script}, args...)...), opts...)
}
