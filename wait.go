// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/efficientgo/core/backoff"
	"github.com/efficientgo/core/errors"
)

// Waiter blocks until asynchronously started system is assumed to be up.
type Waiter interface {
	Wait(ctx context.Context) error
}

var (
	_ Waiter = &SleepWaiter{}
	_ Waiter = &ProbeWaiter{}
)

// SleepWaiter waits blindly for the fixed duration. Nothing is checked.
type SleepWaiter struct {
	d time.Duration
}

func NewSleepWaiter(d time.Duration) *SleepWaiter {
	return &SleepWaiter{d: d}
}

func (w *SleepWaiter) Duration() time.Duration { return w.d }

func (w *SleepWaiter) Wait(ctx context.Context) error {
	t := time.NewTimer(w.d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *SleepWaiter) String() string { return fmt.Sprintf("sleep(%v)", w.d) }

// DefaultProbeBackoff gives the network up to ~10 minutes to come up.
var DefaultProbeBackoff = backoff.Config{
	Min:        1 * time.Second,
	Max:        5 * time.Second,
	MaxRetries: 120,
}

// ProbeWaiter polls all probes until all of them report ready in the same round, or the backoff gives up.
type ProbeWaiter struct {
	logger Logger
	cfg    backoff.Config
	probes []ReadinessProbe
}

func NewProbeWaiter(logger Logger, cfg backoff.Config, probes ...ReadinessProbe) *ProbeWaiter {
	return &ProbeWaiter{logger: logger, cfg: cfg, probes: probes}
}

func (w *ProbeWaiter) Wait(ctx context.Context) error {
	if len(w.probes) == 0 {
		return errors.New("no readiness probes configured")
	}

	var err error
	b := backoff.New(ctx, w.cfg)
	for b.Ongoing() {
		if err = w.ready(ctx); err == nil {
			return nil
		}
		w.logger.Log("Not ready yet after", b.NumRetries(), "retries:", err)
		b.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrapf(err, "not ready after %d retries", b.NumRetries())
}

func (w *ProbeWaiter) ready(ctx context.Context) error {
	for i, p := range w.probes {
		if err := p.Ready(ctx); err != nil {
			return errors.Wrapf(err, "probe %d", i)
		}
	}
	return nil
}

func (w *ProbeWaiter) String() string {
	names := make([]string, 0, len(w.probes))
	for _, p := range w.probes {
		names = append(names, fmt.Sprintf("%v", p))
	}
	return "probe(" + strings.Join(names, ", ") + ")"
}
