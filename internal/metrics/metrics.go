package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

// Metrics holds the query engine collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	// QueriesTotal counts submitted queries per profile.
	QueriesTotal *prometheus.CounterVec
	// PollDuration is the time spent waiting for each page.
	PollDuration *prometheus.HistogramVec
	// PagesTotal counts received pages by kind (data or message).
	PagesTotal *prometheus.CounterVec
	// RowsTotal counts rows delivered in data pages.
	RowsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsql_queries_total",
				Help: "Total number of submitted queries",
			},
			[]string{"profile"},
		),
		PollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upsql_poll_duration_seconds",
				Help:    "Time spent waiting for a result page",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"profile", "outcome"},
		),
		PagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsql_pages_total",
				Help: "Total number of result pages received",
			},
			[]string{"profile", "kind"},
		),
		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upsql_rows_total",
				Help: "Total number of rows received",
			},
			[]string{"profile"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile dumps every collector in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Observer returns a query.Observer recording under the given profile.
func (m *Metrics) Observer(profile string) query.Observer {
	return &observer{m: m, profile: profile}
}

type observer struct {
	m       *Metrics
	profile string
}

func (o *observer) Submitted() {
	o.m.QueriesTotal.WithLabelValues(o.profile).Inc()
}

func (o *observer) Polled(elapsed time.Duration, err error) {
	o.m.PollDuration.WithLabelValues(o.profile, outcome(err)).Observe(elapsed.Seconds())
}

func (o *observer) PageReceived(p *query.Page) {
	if p.IsData() {
		o.m.PagesTotal.WithLabelValues(o.profile, "data").Inc()
		o.m.RowsTotal.WithLabelValues(o.profile).Add(float64(len(p.Data)))
		return
	}
	o.m.PagesTotal.WithLabelValues(o.profile, "message").Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dberr.PendingResultTimeout):
		return "timeout"
	case errors.Is(err, dberr.Auth):
		return "auth"
	case errors.Is(err, dberr.Request):
		return "error"
	default:
		return "other"
	}
}
