// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/google/shlex"
	"github.com/kballard/go-shellquote"
)

// Command represents single process invocation on the host.
type Command struct {
	Cmd  string
	Args []string
	// Dir is the working directory of the process. Empty means the caller's working directory.
	Dir string
	// Env is appended to the environment of the caller.
	Env []string
}

func NewCommand(cmd string, args ...string) Command {
	return Command{
		Cmd:  cmd,
		Args: args,
	}
}

// ParseCommand splits shell-like command line (quotes are respected, no expansions are performed) into Command.
func ParseCommand(line string) (Command, error) {
	parts, err := shlex.Split(strings.TrimSpace(line))
	if err != nil {
		return Command{}, errors.Wrapf(err, "parse command %q", line)
	}
	if len(parts) == 0 {
		return Command{}, errors.Newf("empty command %q", line)
	}
	if strings.HasPrefix(parts[0], "-") {
		return Command{}, errors.Newf("command name can't start with dash, got %q", parts[0])
	}
	return NewCommand(parts[0], parts[1:]...), nil
}

// String returns command line that a shell would interpret as this command.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Cmd}, c.Args...)...)
}

func (c Command) exec(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Cmd, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

type ExecOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// ExecOption defined the signature of a function used to manipulate exec options.
type ExecOption func(o *ExecOptions)

// WithExecOptionStdout redirects stdout of the command to given writer instead of the logger.
func WithExecOptionStdout(stdout io.Writer) ExecOption {
	return func(o *ExecOptions) {
		o.Stdout = stdout
	}
}

// WithExecOptionStderr redirects stderr of the command to given writer instead of the logger.
func WithExecOptionStderr(stderr io.Writer) ExecOption {
	return func(o *ExecOptions) {
		o.Stderr = stderr
	}
}

// Executor runs commands to completion. Non-zero exit status is returned as *ExitError.
type Executor interface {
	Exec(ctx context.Context, command Command, opts ...ExecOption) error
}

var _ Executor = &HostExecutor{}

// HostExecutor runs commands as child processes of the current one, streaming their output line by line to the logger.
type HostExecutor struct {
	logger  Logger
	verbose bool
}

func NewHostExecutor(logger Logger, verbose bool) *HostExecutor {
	return &HostExecutor{logger: logger, verbose: verbose}
}

func (e *HostExecutor) Exec(ctx context.Context, command Command, opts ...ExecOption) error {
	l := &LinePrefixLogger{prefix: filepath.Base(command.Cmd) + ": ", logger: e.logger}
	o := ExecOptions{Stdout: l, Stderr: l}
	for _, opt := range opts {
		opt(&o)
	}

	if e.verbose {
		e.logger.Log("exec:", command.String())
	}

	cmd := command.exec(ctx)
	cmd.Stdout = o.Stdout
	cmd.Stderr = o.Stderr
	if err := cmd.Run(); err != nil {
		return newExitError(command, err)
	}
	return nil
}
