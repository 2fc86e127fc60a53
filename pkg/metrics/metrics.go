package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xhad/readmit/pkg/pipeline"
)

// Recorder counts pipeline activity. It observes pipeline events and can be
// shared by concurrent runs.
type Recorder struct {
	registry *prometheus.Registry

	TermsTotal    *prometheus.CounterVec
	ArticlesTotal prometheus.Counter
	PageFetches   prometheus.Counter
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		TermsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readmit_terms_total",
				Help: "Terms handled by the pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		ArticlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readmit_articles_total",
			Help: "Articles cited by processed terms",
		}),
		PageFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readmit_page_fetches_total",
			Help: "Listing and article pages requested",
		}),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readmit_runs_total",
				Help: "Pipeline runs, by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readmit_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}

	r.registry.MustRegister(r.TermsTotal, r.ArticlesTotal, r.PageFetches, r.RunsTotal, r.RunDuration)
	return r
}

// Observe implements pipeline.Observer.
func (r *Recorder) Observe(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventSummary:
		r.TermsTotal.WithLabelValues("processed").Inc()
		r.ArticlesTotal.Add(float64(len(e.Citations)))
	case pipeline.EventTermFailed:
		r.TermsTotal.WithLabelValues("failed").Inc()
	}
}

// PageFetched counts one page request. Its signature matches the scraper's
// progress callback.
func (r *Recorder) PageFetched(string) {
	r.PageFetches.Inc()
}

// RunFinished records a run's outcome and duration.
func (r *Recorder) RunFinished(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(d.Seconds())
}

// Handler exposes the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
