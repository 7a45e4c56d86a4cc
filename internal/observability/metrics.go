package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics.
//
// The metrics track:
//   - Gateway events handled by the reconciler
//   - Migration trigger outcomes and interactive prompt outcomes
//   - Pin cache fetches and the tracked pin count per channel
//   - Messages copied to pinboards
//   - Discord REST call latency
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordTrigger("migrated")
type Metrics struct {
	// ReconcilerEvents counts gateway events.
	// Labels: event (create|edit|delete|reaction), outcome
	ReconcilerEvents *prometheus.CounterVec

	// TriggerOutcomes counts migration trigger evaluations.
	// Labels: outcome (below-threshold|manual|declined|no-pinboards|no-selection|migrated|error)
	TriggerOutcomes *prometheus.CounterVec

	// PromptOutcomes counts interactive prompts.
	// Labels: kind (confirm|select), outcome (accepted|rejected|selected|abandoned|error)
	PromptOutcomes *prometheus.CounterVec

	// CacheFetches counts pin cache lookups.
	// Labels: result (cached|fresh|in-progress|unknown)
	CacheFetches *prometheus.CounterVec

	// MigratedMessages counts messages processed by the migration executor.
	// Labels: status (migrated|failed)
	MigratedMessages *prometheus.CounterVec

	// TrackedPins is the number of pinned messages tracked per channel.
	// Labels: channel_id
	TrackedPins *prometheus.GaugeVec

	// PlatformRequestDuration measures Discord REST call latency in seconds.
	// Labels: operation, status (success|error)
	// Buckets: 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
	PlatformRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the service metrics and registers them with reg.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReconcilerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinboard_reconciler_events_total",
				Help: "Total number of gateway events handled by event type and outcome",
			},
			[]string{"event", "outcome"},
		),

		TriggerOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinboard_trigger_outcomes_total",
				Help: "Total number of migration trigger evaluations by outcome",
			},
			[]string{"outcome"},
		),

		PromptOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinboard_prompt_outcomes_total",
				Help: "Total number of interactive prompts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		CacheFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinboard_cache_fetches_total",
				Help: "Total number of pin cache lookups by result",
			},
			[]string{"result"},
		),

		MigratedMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinboard_migrated_messages_total",
				Help: "Total number of messages processed by the migration executor",
			},
			[]string{"status"},
		),

		TrackedPins: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pinboard_tracked_pins",
				Help: "Number of pinned messages currently tracked per channel",
			},
			[]string{"channel_id"},
		),

		PlatformRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pinboard_platform_request_duration_seconds",
				Help:    "Duration of Discord REST calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
	}
}

// RecordEvent increments the reconciler event counter.
func (m *Metrics) RecordEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.ReconcilerEvents.WithLabelValues(event, outcome).Inc()
}

// RecordTrigger increments the trigger outcome counter.
func (m *Metrics) RecordTrigger(outcome string) {
	if m == nil {
		return
	}
	m.TriggerOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPrompt increments the prompt outcome counter.
func (m *Metrics) RecordPrompt(kind, outcome string) {
	if m == nil {
		return
	}
	m.PromptOutcomes.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheFetch increments the cache fetch counter.
func (m *Metrics) RecordCacheFetch(result string) {
	if m == nil {
		return
	}
	m.CacheFetches.WithLabelValues(result).Inc()
}

// RecordMigration adds the executor's per-run totals.
func (m *Metrics) RecordMigration(migrated, failed int) {
	if m == nil {
		return
	}
	m.MigratedMessages.WithLabelValues("migrated").Add(float64(migrated))
	m.MigratedMessages.WithLabelValues("failed").Add(float64(failed))
}

// SetTrackedPins sets the tracked pin gauge for a channel.
func (m *Metrics) SetTrackedPins(channelID string, count int) {
	if m == nil {
		return
	}
	m.TrackedPins.WithLabelValues(channelID).Set(float64(count))
}

// DeleteTrackedPins drops the gauge series for a channel.
func (m *Metrics) DeleteTrackedPins(channelID string) {
	if m == nil {
		return
	}
	m.TrackedPins.DeleteLabelValues(channelID)
}

// RecordPlatformRequest observes a Discord REST call.
func (m *Metrics) RecordPlatformRequest(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PlatformRequestDuration.WithLabelValues(operation, status).Observe(durationSeconds)
}
