// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlsmoke

import (
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nctlci"

var _ nctlci.SequenceListener = &Report{}

// Report records outcome of every finished step in Prometheus metrics, so the run can be exported
// with node_exporter textfile collector or uploaded next to the logs.
type Report struct {
	reg *prometheus.Registry

	stepDuration *prometheus.GaugeVec
	stepSuccess  *prometheus.GaugeVec
	runSuccess   prometheus.Gauge
	runTimestamp prometheus.Gauge
}

func NewReport() *Report {
	r := &Report{
		reg: prometheus.NewRegistry(),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "How long the smoke test step took.",
		}, []string{"step"}),
		stepSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_success",
			Help:      "1 if the smoke test step succeeded, 0 otherwise.",
		}, []string{"step"}),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the whole smoke test run succeeded, 0 otherwise.",
		}),
		runTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_timestamp_seconds",
			Help:      "Unix time of the smoke test run end.",
		}),
	}
	r.reg.MustRegister(r.stepDuration, r.stepSuccess, r.runSuccess, r.runTimestamp)
	return r
}

// Registry returns registry with all report metrics.
func (r *Report) Registry() *prometheus.Registry { return r.reg }

func (r *Report) OnStepDone(step string, took time.Duration, err error) {
	r.stepDuration.WithLabelValues(step).Set(took.Seconds())
	if err != nil {
		r.stepSuccess.WithLabelValues(step).Set(0)
		return
	}
	r.stepSuccess.WithLabelValues(step).Set(1)
}

// Finish records the final result of the run.
func (r *Report) Finish(err error) {
	r.runTimestamp.SetToCurrentTime()
	if err != nil {
		r.runSuccess.Set(0)
		return
	}
	r.runSuccess.Set(1)
}

// WriteTextfile writes all metrics in the Prometheus text format. The file is replaced atomically.
func (r *Report) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrapf(err, "write report to %v", path)
	}
	return nil
}
