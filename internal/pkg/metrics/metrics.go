// Package metrics exposes Prometheus counters for billing and ATS activity.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
)

const namespace = "jobboard"

type Collector struct {
	registry *prometheus.Registry

	WebhookEvents       *prometheus.CounterVec
	Checkouts           *prometheus.CounterVec
	EntitlementConsumed *prometheus.CounterVec
	JobsClosed          prometheus.Counter
	QueueDepth          *prometheus.GaugeVec
	QueueLifetime       *prometheus.GaugeVec
}

// New creates a Collector with its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment gateway webhook deliveries by event and outcome",
		}, []string{"event", "outcome"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Subscription checkouts by plan type and outcome",
		}, []string{"plan_type", "outcome"}),
		EntitlementConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_consumed_total",
			Help:      "Entitlement units consumed by feature",
		}, []string{"feature"}),
		JobsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_closed_total",
			Help:      "Jobs archived because their owner's subscription ended",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Notification jobs currently held per queue list",
		}, []string{"list"}),
		QueueLifetime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_lifetime",
			Help:      "Notification jobs ever enqueued, completed or killed, as counted in Redis",
		}, []string{"status"}),
	}
	reg.MustRegister(
		c.WebhookEvents,
		c.Checkouts,
		c.EntitlementConsumed,
		c.JobsClosed,
		c.QueueDepth,
		c.QueueLifetime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordWebhook(event, outcome string) {
	if c == nil {
		return
	}
	c.WebhookEvents.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) RecordCheckout(planType, outcome string) {
	if c == nil {
		return
	}
	c.Checkouts.WithLabelValues(planType, outcome).Inc()
}

func (c *Collector) RecordConsumed(feature string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.EntitlementConsumed.WithLabelValues(feature).Add(float64(n))
}

func (c *Collector) RecordJobsClosed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.JobsClosed.Add(float64(n))
}

func (c *Collector) RecordQueue(s jobqueue.Snapshot) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues("pending").Set(float64(s.Pending))
	c.QueueDepth.WithLabelValues("processing").Set(float64(s.Processing))
	c.QueueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
	c.QueueDepth.WithLabelValues("dead").Set(float64(s.Dead))
	for status, n := range s.Lifetime {
		c.QueueLifetime.WithLabelValues(string(status)).Set(float64(n))
	}
}
