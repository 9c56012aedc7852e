package metrics

import (
	"context"
	"net/http"

	optin "github.com/goliatone/go-optin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts opt-in activity. It implements optin.ActivitySink.
type Collector struct {
	Events *prometheus.CounterVec
	// Resolutions counts entries leaving pending, labeled by final status.
	Resolutions *prometheus.CounterVec
}

var _ optin.ActivitySink = (*Collector)(nil)

// NewCollector registers the opt-in metrics on reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optin_events_total",
				Help: "Total opt-in activity events",
			},
			[]string{"event", "agent"},
		),
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optin_entries_resolved_total",
				Help: "Total entries resolved, by final status",
			},
			[]string{"status", "agent"},
		),
	}
}

// Record implements optin.ActivitySink.
func (c *Collector) Record(_ context.Context, event optin.ActivityEvent) error {
	c.Events.WithLabelValues(string(event.EventType), event.AgentName).Inc()

	switch event.EventType {
	case optin.ActivityEventEntryOptedIn, optin.ActivityEventEntryExpired:
		c.Resolutions.WithLabelValues(string(event.ToStatus), event.AgentName).Inc()
	}

	return nil
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
