// Package metrics collects and exposes Prometheus metrics for the
// lifecycle engine: sweep outcomes, billing-relevant transitions and
// outbox deliveries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the app package's SweepMetrics and EventMetrics.
type Collector struct {
	registry *prometheus.Registry

	sweeps             prometheus.Counter
	sweepErrors        prometheus.Counter
	sweepDuration      prometheus.Histogram
	listingsExpired    prometheus.Counter
	promotionsReverted prometheus.Counter
	viewCreditsCarried prometheus.Counter
	eventsPublished    prometheus.Counter
	eventsDropped      prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_reconciler_sweeps_total",
			Help: "Completed reconciler sweeps.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_reconciler_sweep_errors_total",
			Help: "Per-listing failures during reconciler sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "listing_reconciler_sweep_duration_seconds",
			Help:    "Duration of reconciler sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		listingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_expirations_total",
			Help: "Listings hard-expired by the sweep.",
		}),
		promotionsReverted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_promotions_reverted_total",
			Help: "Promotions reverted by the sweep.",
		}),
		viewCreditsCarried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_view_credits_carried_total",
			Help: "Unused views banked into the carryover ledger.",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_events_published_total",
			Help: "Domain events delivered to the broker.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_events_dropped_total",
			Help: "Domain events dropped because the outbox was full.",
		}),
	}

	c.registry.MustRegister(
		c.sweeps, c.sweepErrors, c.sweepDuration,
		c.listingsExpired, c.promotionsReverted, c.viewCreditsCarried,
		c.eventsPublished, c.eventsDropped,
	)
	return c
}

func (c *Collector) RecordSweep(d time.Duration) {
	c.sweeps.Inc()
	c.sweepDuration.Observe(d.Seconds())
}

func (c *Collector) RecordSweepError()        { c.sweepErrors.Inc() }
func (c *Collector) RecordListingExpired()    { c.listingsExpired.Inc() }
func (c *Collector) RecordPromotionReverted() { c.promotionsReverted.Inc() }

func (c *Collector) RecordViewCreditsCarried(n int64) {
	c.viewCreditsCarried.Add(float64(n))
}

func (c *Collector) RecordEventPublished() { c.eventsPublished.Inc() }
func (c *Collector) RecordEventDropped()   { c.eventsDropped.Inc() }

// Handler exposes the collector's registry for the /metrics route.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
