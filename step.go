// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"time"

	"github.com/efficientgo/core/errors"
)

// Step is the smallest entity that Sequence can run.
type Step interface {
	// Name returns unique name of the step within the sequence.
	Name() string
	// Run executes the step. Any error fails the whole sequence.
	Run(ctx context.Context) error
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewStep returns Step that runs given function.
func NewStep(name string, fn func(ctx context.Context) error) Step {
	return stepFunc{name: name, fn: fn}
}

func (s stepFunc) Name() string                  { return s.name }
func (s stepFunc) Run(ctx context.Context) error { return s.fn(ctx) }

// NewCommandStep returns Step that runs given command using executor.
func NewCommandStep(name string, e Executor, cmd Command, opts ...ExecOption) Step {
	return NewStep(name, func(ctx context.Context) error {
		return e.Exec(ctx, cmd, opts...)
	})
}

// SequenceListener is notified about every step that finished, successfully or not.
type SequenceListener interface {
	OnStepDone(step string, took time.Duration, err error)
}

// Sequence runs steps one by one in the registration order. The first failed step stops the sequence,
// no later step is executed. There are no retries.
type Sequence struct {
	logger    Logger
	steps     []Step
	listeners []SequenceListener
}

func NewSequence(logger Logger, steps ...Step) *Sequence {
	return &Sequence{logger: logger, steps: steps}
}

func (s *Sequence) Add(steps ...Step) *Sequence {
	s.steps = append(s.steps, steps...)
	return s
}

func (s *Sequence) AddListener(l SequenceListener) {
	s.listeners = append(s.listeners, l)
}

// Names returns step names in the execution order.
func (s *Sequence) Names() []string {
	names := make([]string, 0, len(s.steps))
	for _, st := range s.steps {
		names = append(names, st.Name())
	}
	return names
}

// Run runs all steps. It returns *StepError for the first failed step.
func (s *Sequence) Run(ctx context.Context) error {
	seen := make(map[string]struct{}, len(s.steps))
	for _, st := range s.steps {
		if _, ok := seen[st.Name()]; ok {
			return errors.Newf("step %q registered more than once", st.Name())
		}
		seen[st.Name()] = struct{}{}
	}

	for _, st := range s.steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: st.Name(), Err: err}
		}

		s.logger.Log("Starting step", st.Name())
		start := time.Now()
		err := st.Run(ctx)
		took := time.Since(start)

		for _, l := range s.listeners {
			l.OnStepDone(st.Name(), took, err)
		}
		if err != nil {
			s.logger.Log("Step", st.Name(), "failed after", took.Round(time.Millisecond), "err:", err)
			return &StepError{Step: st.Name(), Err: err}
		}
		s.logger.Log("Finished step", st.Name(), "in", took.Round(time.Millisecond))
	}
	return nil
}
