// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efficientgo/core/backoff"
	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/core/testutil"
)

const testMetrics = `
# HELP chain_height cheescake
# TYPE chain_height gauge
chain_height 20
# HELP metric_a cheescake
# TYPE metric_a gauge
metric_a 1
metric_a{first="value1"} 10
metric_a{first="value2"} 2
# HELP metric_b_counter cheescake
# TYPE metric_b_counter counter
metric_b_counter 1020
# HELP metric_b_hist cheescake
# TYPE metric_b_hist histogram
metric_b_hist_count 5
metric_b_hist_sum 124
metric_b_hist_bucket{le="5.36870912e+08"} 1
metric_b_hist_bucket{le="+Inf"} 5
`

// serve listens on a random port before starting the HTTP server, to make sure the port is already open
// when probes are called the first time (this avoid flaky tests).
func serve(t *testing.T, h http.Handler) string {
	ln, err := net.Listen("tcp", "localhost:0")
	testutil.Ok(t, err)

	srv := &http.Server{Handler: h}
	t.Cleanup(func() { _ = srv.Close() })
	go func() {
		_ = srv.Serve(ln)
	}()
	return ln.Addr().String()
}

func TestHTTPReadinessProbe(t *testing.T) {
	var ready atomic.Bool
	endpoint := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"api_version":"1.0.0","last_added_block_info":{"height":3}}`))
	}))

	ctx := context.Background()
	p := NewHTTPReadinessProbe(endpoint, "/status", 200, 299)
	testutil.NotOk(t, p.Ready(ctx))

	ready.Store(true)
	testutil.Ok(t, p.Ready(ctx))
	testutil.Ok(t, NewHTTPReadinessProbe(endpoint, "/status", 200, 200, "last_added_block_info").Ready(ctx))
	testutil.NotOk(t, NewHTTPReadinessProbe(endpoint, "/status", 200, 200, "cheesecake").Ready(ctx))
	testutil.NotOk(t, NewHTTPReadinessProbe(endpoint, "/other", 200, 200).Ready(ctx))
	testutil.Equals(t, "http://"+endpoint+"/status", p.String())
}

func TestMetricReadinessProbe(t *testing.T) {
	endpoint := serve(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testMetrics))
	}))
	ctx := context.Background()

	for _, tcase := range []struct {
		metric   string
		expected MetricValueExpectation
		sum      float64
	}{
		{metric: "chain_height", expected: Greater(0), sum: 20},
		{metric: "metric_a", expected: Equals(13), sum: 13},
		{metric: "metric_b_counter", expected: GreaterOrEqual(1020), sum: 1020},
		{metric: "metric_b_hist", expected: Less(125), sum: 124},
	} {
		t.Run(tcase.metric, func(t *testing.T) {
			p := NewMetricReadinessProbe(endpoint, "/metrics", tcase.metric, tcase.expected)
			sum, err := p.Sum(ctx)
			testutil.Ok(t, err)
			testutil.Equals(t, tcase.sum, sum)
			testutil.Ok(t, p.Ready(ctx))
		})
	}

	testutil.NotOk(t, NewMetricReadinessProbe(endpoint, "/metrics", "chain_height", Greater(20)).Ready(ctx))

	err := NewMetricReadinessProbe(endpoint, "/metrics", "non_existing_metric", Greater(0)).Ready(ctx)
	testutil.NotOk(t, err)
	testutil.Assert(t, errors.Is(err, errMissingMetric))
}

func TestParseMetricCondition(t *testing.T) {
	for _, tcase := range []struct {
		cond   string
		metric string
		met    []float64
		unmet  []float64
	}{
		{cond: "chain_height", metric: "chain_height", met: []float64{1, 0.5}, unmet: []float64{0, -1}},
		{cond: "chain_height>=10", metric: "chain_height", met: []float64{10, 11}, unmet: []float64{9}},
		{cond: " chain_height > 10 ", metric: "chain_height", met: []float64{11}, unmet: []float64{10}},
		{cond: "peers==5", metric: "peers", met: []float64{5}, unmet: []float64{4, 6}},
		{cond: "pending_deploys<1", metric: "pending_deploys", met: []float64{0}, unmet: []float64{1}},
	} {
		t.Run(tcase.cond, func(t *testing.T) {
			metric, expected, err := ParseMetricCondition(tcase.cond)
			testutil.Ok(t, err)
			testutil.Equals(t, tcase.metric, metric)
			for _, v := range tcase.met {
				testutil.Assert(t, expected(v), "%v should meet %v", v, tcase.cond)
			}
			for _, v := range tcase.unmet {
				testutil.Assert(t, !expected(v), "%v should not meet %v", v, tcase.cond)
			}
		})
	}

	for _, cond := range []string{"", ">=10", "chain_height>=", "chain_height>=ten", "chain_height>=1>=2"} {
		_, _, err := ParseMetricCondition(cond)
		testutil.NotOk(t, err, cond)
	}
}

func TestEquals_NaN(t *testing.T) {
	testutil.Assert(t, Equals(math.NaN())(math.NaN()))
	testutil.Assert(t, !Equals(1)(math.NaN()))
}

type countingProbe struct {
	calls      int
	readyAfter int
}

func (p *countingProbe) Ready(context.Context) error {
	p.calls++
	if p.calls < p.readyAfter {
		return errors.Newf("not yet, call %d", p.calls)
	}
	return nil
}

func TestProbeWaiter(t *testing.T) {
	logger := NewLogger(io.Discard)
	cfg := backoff.Config{Min: time.Millisecond, Max: 2 * time.Millisecond, MaxRetries: 10}

	t.Run("ready after few rounds", func(t *testing.T) {
		p1, p2 := &countingProbe{readyAfter: 1}, &countingProbe{readyAfter: 3}
		testutil.Ok(t, NewProbeWaiter(logger, cfg, p1, p2).Wait(context.Background()))
		testutil.Equals(t, 3, p2.calls)
		testutil.Equals(t, 3, p1.calls)
	})
	t.Run("never ready", func(t *testing.T) {
		p := &countingProbe{readyAfter: 100}
		testutil.NotOk(t, NewProbeWaiter(logger, cfg, p).Wait(context.Background()))
		testutil.Equals(t, 10, p.calls)
	})
	t.Run("no probes", func(t *testing.T) {
		testutil.NotOk(t, NewProbeWaiter(logger, cfg).Wait(context.Background()))
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewProbeWaiter(logger, cfg, &countingProbe{readyAfter: 100}).Wait(ctx)
		testutil.Assert(t, errors.Is(err, context.Canceled), err)
	})
}

func TestSleepWaiter(t *testing.T) {
	w := NewSleepWaiter(10 * time.Millisecond)
	testutil.Equals(t, 10*time.Millisecond, w.Duration())
	testutil.Equals(t, "sleep(10ms)", w.String())

	start := time.Now()
	testutil.Ok(t, w.Wait(context.Background()))
	testutil.Assert(t, time.Since(start) >= 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testutil.Equals(t, context.Canceled, NewSleepWaiter(time.Hour).Wait(ctx))
}
