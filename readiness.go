// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/efficientgo/core/errcapture"
	"github.com/efficientgo/core/errors"
	"github.com/prometheus/common/expfmt"
)

var errMissingMetric = errors.New("metric not found")

// ReadinessProbe tells if something observable from the host is ready.
type ReadinessProbe interface {
	Ready(ctx context.Context) (err error)
}

// HTTPReadinessProbe checks readiness by making HTTP call and checking for expected HTTP status code.
type HTTPReadinessProbe struct {
	endpoint                 string
	path                     string
	expectedStatusRangeStart int
	expectedStatusRangeEnd   int
	expectedContent          []string
}

func NewHTTPReadinessProbe(endpoint string, path string, expectedStatusRangeStart, expectedStatusRangeEnd int, expectedContent ...string) *HTTPReadinessProbe {
	return &HTTPReadinessProbe{
		endpoint:                 endpoint,
		path:                     path,
		expectedStatusRangeStart: expectedStatusRangeStart,
		expectedStatusRangeEnd:   expectedStatusRangeEnd,
		expectedContent:          expectedContent,
	}
}

func (p *HTTPReadinessProbe) Ready(ctx context.Context) (err error) {
	body, code, err := httpGet(ctx, time.Second, "http://"+p.endpoint+p.path)
	if err != nil {
		return err
	}

	if code < p.expectedStatusRangeStart || code > p.expectedStatusRangeEnd {
		return errors.Newf("expected code in range: [%v, %v], got status code: %v and body: %v", p.expectedStatusRangeStart, p.expectedStatusRangeEnd, code, body)
	}

	for _, expected := range p.expectedContent {
		if !strings.Contains(body, expected) {
			return errors.Newf("expected body containing %s, got: %v", expected, body)
		}
	}
	return nil
}

func (p *HTTPReadinessProbe) String() string { return fmt.Sprintf("http://%s%s", p.endpoint, p.path) }

// MetricReadinessProbe checks readiness by scraping Prometheus metrics and asserting on the sum of all series
// of the given metric.
type MetricReadinessProbe struct {
	endpoint   string
	path       string
	metricName string
	expected   MetricValueExpectation
}

// NewMetricReadinessProbe creates probe scraping http://<endpoint><path>, e.g. path "/metrics".
func NewMetricReadinessProbe(endpoint, path, metricName string, expected MetricValueExpectation) *MetricReadinessProbe {
	return &MetricReadinessProbe{endpoint: endpoint, path: path, metricName: metricName, expected: expected}
}

func (p *MetricReadinessProbe) Ready(ctx context.Context) error {
	sum, err := p.Sum(ctx)
	if err != nil {
		return err
	}
	if !p.expected(sum) {
		return errors.Newf("metric %s=%v at %s does not meet expectation", p.metricName, sum, p.endpoint)
	}
	return nil
}

// Sum scrapes metrics and returns sum of all series of the probed metric.
func (p *MetricReadinessProbe) Sum(ctx context.Context) (float64, error) {
	body, code, err := httpGet(ctx, 5*time.Second, "http://"+p.endpoint+p.path)
	if err != nil {
		return 0, err
	}
	if code < 200 || code >= 300 {
		return 0, errors.Newf("unexpected status code %d while fetching metrics", code)
	}

	var tp expfmt.TextParser
	families, err := tp.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "parse metrics")
	}

	mf, ok := families[p.metricName]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0, errors.Wrapf(errMissingMetric, "metric=%s endpoint=%s", p.metricName, p.endpoint)
	}
	return SumValues(getValues(mf.GetMetric())), nil
}

func (p *MetricReadinessProbe) String() string {
	return fmt.Sprintf("http://%s%s#%s", p.endpoint, p.path, p.metricName)
}

func httpGet(ctx context.Context, timeout time.Duration, url string) (_ string, _ int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	res, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return "", 0, err
	}
	defer errcapture.ExhaustClose(&err, res.Body, "response readiness")

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", 0, err
	}
	return string(body), res.StatusCode, nil
}
