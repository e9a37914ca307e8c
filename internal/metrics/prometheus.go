package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brickview"

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	collectionUpdates prom.Counter
	collectionErrors  prom.Counter
	selections        prom.Counter
	staleEvents       *prom.CounterVec
	artifactOutcomes  *prom.CounterVec
	fetchDuration     prom.Histogram
	readyDuration     prom.Histogram
}

// NewPrometheusRecorder creates the metrics and registers them with reg.
// It panics if they are already registered.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		collectionUpdates: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "collection_updates_total",
			Help:      "Build collection snapshots received",
		}),
		collectionErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "collection_errors_total",
			Help:      "Build collection snapshots rejected or not received",
		}),
		selections: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Successful builds selected for rendering",
		}),
		staleEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Completions dropped because their generation was superseded",
		}, []string{"event"}),
		artifactOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_outcomes_total",
			Help:      "Artifact generations by outcome",
		}, []string{"outcome"}),
		fetchDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Artifact fetch duration",
			Buckets:   prom.DefBuckets,
		}),
		readyDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "ready_duration_seconds",
			Help:      "Time from selecting a build to its artifact being fully rendered",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(
		r.collectionUpdates,
		r.collectionErrors,
		r.selections,
		r.staleEvents,
		r.artifactOutcomes,
		r.fetchDuration,
		r.readyDuration,
	)
	return r
}

func (r *PrometheusRecorder) IncCollectionUpdate() { r.collectionUpdates.Inc() }
func (r *PrometheusRecorder) IncCollectionError()  { r.collectionErrors.Inc() }
func (r *PrometheusRecorder) IncSelection()        { r.selections.Inc() }

func (r *PrometheusRecorder) IncStaleEvent(event string) {
	r.staleEvents.WithLabelValues(event).Inc()
}

func (r *PrometheusRecorder) IncArtifactOutcome(outcome ArtifactOutcome) {
	r.artifactOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (r *PrometheusRecorder) ObserveFetchDuration(d time.Duration) {
	r.fetchDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveReadyDuration(d time.Duration) {
	r.readyDuration.Observe(d.Seconds())
}

// HTTPHandler serves the metrics gathered by reg.
func HTTPHandler(reg prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
