// Package metrics counts submissions and reconciliation decisions with
// Prometheus collectors. A run of the CLI can dump them to a textfile for
// the node exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/dmpsync/internal/model"
)

const namespace = "dmpsync"

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder owns a private registry so tests and repeated CLI runs never
// collide on the default one.
type Recorder struct {
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	matches     *prometheus.CounterVec
	violations  *prometheus.CounterVec
	minted      prometheus.Counter
	archived    prometheus.Counter
	duration    prometheus.Histogram
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submitted documents by provenance and outcome.",
		}, []string{"provenance", "outcome"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_matches_total",
			Help:      "Reconciliation decisions by entity kind and match strategy.",
		}, []string{"kind", "strategy"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_violations_total",
			Help:      "Graph validation failures by violation code.",
		}, []string{"code"}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dois_minted_total",
			Help:      "DOIs minted for plans that had none.",
		}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_archived_total",
			Help:      "Submission payloads written to the archive.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Wall time of one submission from parse to commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	r.registry.MustRegister(r.submissions, r.matches, r.violations, r.minted, r.archived, r.duration)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveMatch counts one reconciliation decision.
func (r *Recorder) ObserveMatch(kind model.EntityKind, strategy string) {
	r.matches.WithLabelValues(string(kind), strategy).Inc()
}

// ObserveSubmission counts one submission and its duration.
func (r *Recorder) ObserveSubmission(provenance, outcome string, elapsed time.Duration) {
	r.submissions.WithLabelValues(provenance, outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// ObserveViolation counts one graph validation failure.
func (r *Recorder) ObserveViolation(code string) {
	r.violations.WithLabelValues(code).Inc()
}

// ObserveMint counts one minted DOI.
func (r *Recorder) ObserveMint() { r.minted.Inc() }

// ObserveArchive counts one archived payload.
func (r *Recorder) ObserveArchive() { r.archived.Inc() }

// WriteToTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
