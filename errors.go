// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/efficientgo/core/errors"
)

const (
	// ExitCodeFailure is the exit status for failures that did not come from a command, e.g. unmet preconditions.
	ExitCodeFailure = 1
	// ExitCodeNotFound is what shells return when the command can't be found.
	ExitCodeNotFound = 127
)

// ErrPrecondition is returned (wrapped) when the invocation context does not allow to run at all.
var ErrPrecondition = errors.New("precondition failed")

// ExitError is returned when a command exited with non-zero status or could not be started.
type ExitError struct {
	Command Command
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %s exited with status %d: %v", e.Command.String(), e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func newExitError(c Command, err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
		if code <= 0 {
			code = ExitCodeFailure
		}
		return &ExitError{Command: c, Code: code, Err: err}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return &ExitError{Command: c, Code: ExitCodeNotFound, Err: err}
	}
	return errors.Wrapf(err, "run %s", c.String())
}

// StepError tells which step of a sequence failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// ExitCode returns the process exit status that represents err the best: 0 for nil, status of the failed
// command if any command failed and ExitCodeFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code > 0 {
		return ee.Code
	}
	return ExitCodeFailure
}
