// Package metrics_test verifies that every Prometheus metric exported by the
// metrics package can be registered without panicking, and that increments
// are reflected in the metric's current value.
//
// Delta comparisons (before/after) are used throughout so that tests remain
// order-independent regardless of how many other tests have touched the
// package-level counters before this file runs.
package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Rubikoid/codestats-reporter/internal/metrics"
)

func TestRegisterWith_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.RegisterWith(prometheus.NewRegistry())
	})
}

func TestRegisterWith_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterWith(reg)
	assert.Panics(t, func() {
		metrics.RegisterWith(reg)
	})
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(metrics.PulsesSent)
	metrics.PulsesSent.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PulsesSent))

	before = testutil.ToFloat64(metrics.FlushesSkipped.WithLabelValues("rate_limited"))
	metrics.FlushesSkipped.WithLabelValues("rate_limited").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FlushesSkipped.WithLabelValues("rate_limited")))

	before = testutil.ToFloat64(metrics.SendErrors.WithLabelValues("network"))
	metrics.SendErrors.WithLabelValues("network").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SendErrors.WithLabelValues("network")))
}

func TestXPPending_Set(t *testing.T) {
	metrics.XPPending.Set(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(metrics.XPPending))
	metrics.XPPending.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.XPPending))
}
