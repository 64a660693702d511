// Package metrics defines package-level Prometheus metric variables for
// codestats-reporter. Call Register() once at startup to expose them on the
// default registry, or RegisterWith() to use an isolated registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// EditsRecorded counts edit events that resolved to a language and
	// incremented a counter.
	EditsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codestats_edits_recorded_total",
		Help: "Edit events counted toward a language XP counter.",
	})

	// PulsesSent counts pulses successfully delivered to the server.
	PulsesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codestats_pulses_sent_total",
		Help: "Pulses successfully delivered to the telemetry server.",
	})

	// FlushesSkipped counts flush attempts that ended without a send.
	// Valid reasons: no_key, empty, rate_limited.
	FlushesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestats_flushes_skipped_total",
		Help: "Flush attempts that ended without a send, by reason (no_key|empty|rate_limited).",
	}, []string{"reason"})

	// SendErrors counts failed pulse deliveries, labelled by type.
	// Valid types: network, read, status.
	SendErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestats_send_errors_total",
		Help: "Failed pulse deliveries, by type (network|read|status).",
	}, []string{"type"})

	// UnmappedLanguages counts edits dropped because the host language has
	// no service-side name.
	UnmappedLanguages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codestats_unmapped_languages_total",
		Help: "Edits dropped because the host language has no service-side name.",
	})

	// XPPending is a gauge of XP accumulated but not yet delivered.
	XPPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codestats_xp_pending",
		Help: "XP accumulated since the last snapshot.",
	})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		EditsRecorded,
		PulsesSent,
		FlushesSkipped,
		SendErrors,
		UnmappedLanguages,
		XPPending,
	)
}
