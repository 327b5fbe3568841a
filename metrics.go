// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"math"
	"strconv"
	"strings"

	"github.com/efficientgo/core/errors"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func getMetricValue(m *io_prometheus_client.Metric) float64 {
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue()
	} else if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	} else if m.GetHistogram() != nil {
		return m.GetHistogram().GetSampleSum()
	} else if m.GetSummary() != nil {
		return m.GetSummary().GetSampleSum()
	} else if m.GetUntyped() != nil {
		return m.GetUntyped().GetValue()
	} else {
		return 0
	}
}

func getValues(metrics []*io_prometheus_client.Metric) []float64 {
	values := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		values = append(values, getMetricValue(m))
	}
	return values
}

func SumValues(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// MetricValueExpectation returns true if given metric sum is what we wait for.
type MetricValueExpectation func(sum float64) bool

// Equals returns true if the sum equals to given value.
func Equals(value float64) MetricValueExpectation {
	return func(sum float64) bool {
		return sum == value || math.IsNaN(sum) && math.IsNaN(value)
	}
}

// Greater returns true if the sum is greater than given value.
func Greater(value float64) MetricValueExpectation {
	return func(sum float64) bool {
		return sum > value
	}
}

// GreaterOrEqual returns true if the sum is greater or equal than given value.
func GreaterOrEqual(value float64) MetricValueExpectation {
	return func(sum float64) bool {
		return sum >= value
	}
}

// Less returns true if the sum is less than given value.
func Less(value float64) MetricValueExpectation {
	return func(sum float64) bool {
		return sum < value
	}
}

var metricConditionOperators = []struct {
	op       string
	expected func(float64) MetricValueExpectation
}{
	// Two character operators go first, so ">=" is not taken for ">".
	{op: ">=", expected: GreaterOrEqual},
	{op: "==", expected: Equals},
	{op: ">", expected: Greater},
	{op: "<", expected: Less},
}

// ParseMetricCondition parses "<metric><op><value>" condition, e.g. "chain_height>=10", where op is one of
// >=, ==, > or <. Bare metric name means the metric sum has to be greater than zero.
func ParseMetricCondition(cond string) (metric string, expected MetricValueExpectation, _ error) {
	cond = strings.TrimSpace(cond)
	for _, o := range metricConditionOperators {
		i := strings.Index(cond, o.op)
		if i < 0 {
			continue
		}
		metric = strings.TrimSpace(cond[:i])
		raw := strings.TrimSpace(cond[i+len(o.op):])
		if metric == "" {
			return "", nil, errors.Newf("metric condition %q: missing metric name", cond)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", nil, errors.Wrapf(err, "metric condition %q: value", cond)
		}
		return metric, o.expected(v), nil
	}
	if cond == "" {
		return "", nil, errors.New("empty metric condition")
	}
	return cond, Greater(0), nil
}
