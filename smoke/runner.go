// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlsmoke

import (
	"context"
	"os"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	nctlmon "github.com/efficientgo/nctlci/monitoring"
)

// Step names in the order they run.
const (
	StepClone       = "clone"
	StepActivate    = "activate"
	StepCompile     = "compile"
	StepAssetsSetup = "assets-setup"
	StepStart       = "start"
	StepWait        = "wait"
	StepScenario    = "scenario"
	StepTeardown    = "teardown"
	StepCleanup     = "cleanup"
)

// Uploader stores local files under the given directory of a remote storage.
type Uploader interface {
	UploadFile(ctx context.Context, dir, file string) error
}

type runnerOptions struct {
	executor  nctlci.Executor
	cloner    Cloner
	waiter    nctlci.Waiter
	lookupEnv func(key string) (string, bool)
	removeAll func(path string) error
	report    *Report

	uploader    Uploader
	uploadDir   string
	uploadFiles []string
}

// RunnerOption defined the signature of a function used to manipulate runner options.
type RunnerOption func(*runnerOptions)

// WithExecutor sets executor for all nctl commands. Host executor by default.
func WithExecutor(e nctlci.Executor) RunnerOption {
	return func(o *runnerOptions) {
		o.executor = e
	}
}

// WithCloner sets how the launcher repository is cloned. Pure Go git by default.
func WithCloner(c Cloner) RunnerOption {
	return func(o *runnerOptions) {
		o.cloner = c
	}
}

// WithWaiter overrides the wait step strategy derived from the config.
func WithWaiter(w nctlci.Waiter) RunnerOption {
	return func(o *runnerOptions) {
		o.waiter = w
	}
}

// WithLookupEnv sets the function used to read the marker variable. os.LookupEnv by default.
func WithLookupEnv(f func(key string) (string, bool)) RunnerOption {
	return func(o *runnerOptions) {
		o.lookupEnv = f
	}
}

// WithRemoveAll sets the function removing the launcher directory. os.RemoveAll by default.
func WithRemoveAll(f func(path string) error) RunnerOption {
	return func(o *runnerOptions) {
		o.removeAll = f
	}
}

// WithReport records the run into the given report instead of a fresh one.
func WithReport(r *Report) RunnerOption {
	return func(o *runnerOptions) {
		o.report = r
	}
}

// WithArtifactUpload uploads the metrics textfile (if configured) and given files into dir once the run finishes.
// Upload failures are logged only.
func WithArtifactUpload(u Uploader, dir string, files ...string) RunnerOption {
	return func(o *runnerOptions) {
		o.uploader = u
		o.uploadDir = dir
		o.uploadFiles = files
	}
}

// Runner runs nctl smoke test: starts local network, runs the scenario against it and tears everything down.
type Runner struct {
	logger nctlci.Logger
	cfg    Config
	opts   runnerOptions
}

func NewRunner(logger nctlci.Logger, cfg Config, opts ...RunnerOption) *Runner {
	o := runnerOptions{
		executor:  nctlci.NewHostExecutor(logger, false),
		cloner:    NewGitCloner(logger),
		lookupEnv: os.LookupEnv,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.report == nil {
		o.report = NewReport()
	}
	return &Runner{logger: logger, cfg: cfg, opts: o}
}

func (r *Runner) Report() *Report { return r.opts.report }

// Waiter returns the wait step strategy.
func (r *Runner) Waiter() nctlci.Waiter {
	if r.opts.waiter != nil {
		return r.opts.waiter
	}
	if r.cfg.Wait != WaitProbe {
		return nctlci.NewSleepWaiter(r.cfg.WaitDuration)
	}

	var (
		metric   string
		expected nctlci.MetricValueExpectation
	)
	if r.cfg.ReadyMetric != "" {
		var err error
		// Validated with the config already.
		if metric, expected, err = nctlci.ParseMetricCondition(r.cfg.ReadyMetric); err != nil {
			r.logger.Log("Ignoring invalid ready metric condition:", err)
			metric = ""
		}
	}

	targets := nctlmon.NewNctlTargets(r.cfg.Nodes, r.cfg.NetworkID)
	probes := make([]nctlci.ReadinessProbe, 0, r.cfg.Nodes)
	for n := 1; n <= r.cfg.Nodes; n++ {
		endpoint := targets.NodeRESTEndpoint(n)
		if metric != "" {
			probes = append(probes, nctlci.NewMetricReadinessProbe(endpoint, targets.MetricsPath, metric, expected))
			continue
		}
		probes = append(probes, nctlci.NewHTTPReadinessProbe(endpoint, "/status", 200, 299))
	}
	return nctlci.NewProbeWaiter(r.logger, nctlci.DefaultProbeBackoff, probes...)
}

func (r *Runner) stepOutput(step string) []nctlci.ExecOption {
	l := nctlci.NewLinePrefixLogger(step+": ", r.logger)
	return []nctlci.ExecOption{nctlci.WithExecOptionStdout(l), nctlci.WithExecOptionStderr(l)}
}

// Sequence returns all steps of the run, guard excluded.
func (r *Runner) Sequence() *nctlci.Sequence {
	cfg := r.cfg
	sh := nctlci.NewShellSession(r.opts.executor, cfg.Root, cfg.ActivateScript)
	nctl := func(step, line string) nctlci.Step {
		return nctlci.NewCommandStep(step, r.opts.executor, sh.Command(line), r.stepOutput(step)...)
	}
	w := r.Waiter()

	s := nctlci.NewSequence(
		r.logger,
		nctlci.NewStep(StepClone, func(ctx context.Context) error {
			return r.opts.cloner.Clone(ctx, cfg.LauncherRepo, cfg.LauncherDir)
		}),
		nctlci.NewStep(StepActivate, func(ctx context.Context) error {
			return sh.Activate(ctx, r.stepOutput(StepActivate)...)
		}),
		nctl(StepCompile, "nctl-compile"),
		nctl(StepAssetsSetup, "nctl-assets-setup"),
		nctl(StepStart, "nctl-start"),
		nctlci.NewStep(StepWait, func(ctx context.Context) error {
			r.logger.Log("Waiting for the network:", w)
			return w.Wait(ctx)
		}),
		nctlci.NewStep(StepScenario, func(ctx context.Context) error {
			return sh.Source(ctx, cfg.ScenarioPath(), cfg.ScenarioArgs(), r.stepOutput(StepScenario)...)
		}),
		nctl(StepTeardown, "nctl-assets-teardown"),
		nctlci.NewStep(StepCleanup, func(context.Context) error {
			return r.cleanup()
		}),
	)
	s.AddListener(r.opts.report)
	return s
}

func (r *Runner) cleanup() error {
	if err := r.opts.removeAll(r.cfg.LauncherDir); err != nil {
		return errors.Wrapf(err, "remove %v", r.cfg.LauncherDir)
	}
	return nil
}

// CheckMarker returns error wrapping nctlci.ErrPrecondition if marker variable is unset or empty.
func CheckMarker(marker string, lookupEnv func(key string) (string, bool)) error {
	if v, ok := lookupEnv(marker); !ok || v == "" {
		return errors.Wrapf(nctlci.ErrPrecondition, "Must be run on Drone! %v is not set", marker)
	}
	return nil
}

// Run checks that it runs in CI and then runs all steps, stopping at the first failure.
// Nothing is done if the marker variable is not set. Use nctlci.ExitCode to get exit status for the returned error.
func (r *Runner) Run(ctx context.Context) error {
	if err := CheckMarker(r.cfg.Marker, r.opts.lookupEnv); err != nil {
		return err
	}
	if err := r.cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	err := r.Sequence().Run(ctx)
	if err != nil && r.cfg.CleanupOnFailure {
		r.logger.Log("Removing", r.cfg.LauncherDir, "after failure")
		if cerr := r.cleanup(); cerr != nil {
			r.logger.Log("Cleanup after failure failed:", cerr)
		}
	}

	r.opts.report.Finish(err)
	r.publish()
	return err
}

// publish writes and uploads run artifacts. Its failures never change the run result.
// Files are uploaded as they are at that moment: the log line announcing an upload is the last one
// the uploaded copy of a log file contains.
func (r *Runner) publish() {
	files := r.opts.uploadFiles
	if r.cfg.MetricsTextfile != "" {
		if err := r.opts.report.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
			r.logger.Log("Unable to write metrics textfile:", err)
		} else {
			files = append([]string{r.cfg.MetricsTextfile}, files...)
		}
	}
	if r.opts.uploader == nil {
		return
	}

	// Run context might be cancelled already, upload anyway.
	ctx := context.Background()
	for _, f := range files {
		r.logger.Log("Uploading", f, "to", r.opts.uploadDir)
		if err := r.opts.uploader.UploadFile(ctx, r.opts.uploadDir, f); err != nil {
			r.logger.Log("Unable to upload", f, "err:", err)
			continue
		}
		r.logger.Log("Uploaded", f, "to", r.opts.uploadDir)
	}
}
