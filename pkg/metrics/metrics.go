// Package metrics exposes Prometheus instrumentation for the event bus and
// the generation pipeline. Collectors register on the default registry and
// are served by the /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusCollector instruments the event bus. It satisfies events.BusMetrics.
type BusCollector struct {
	eventsBroadcast    *prometheus.CounterVec
	subscribersActive  prometheus.Gauge
	subscribersTotal   prometheus.Counter
	subscribersDropped prometheus.Counter
}

// NewBusCollector creates and registers the bus collectors.
func NewBusCollector() *BusCollector {
	return &BusCollector{
		eventsBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tripforge_events_broadcast_total",
			Help: "Events broadcast on the bus, by event type.",
		}, []string{"type"}),
		subscribersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tripforge_event_subscribers",
			Help: "Currently registered event subscriptions.",
		}),
		subscribersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tripforge_event_subscribers_total",
			Help: "Total event subscriptions registered.",
		}),
		subscribersDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tripforge_event_subscribers_dropped_total",
			Help: "Subscriptions terminated for falling behind.",
		}),
	}
}

func (c *BusCollector) EventBroadcast(eventType string) {
	c.eventsBroadcast.WithLabelValues(eventType).Inc()
}

func (c *BusCollector) SubscriberRegistered() {
	c.subscribersActive.Inc()
	c.subscribersTotal.Inc()
}

func (c *BusCollector) SubscriberClosed(dropped bool) {
	c.subscribersActive.Dec()
	if dropped {
		c.subscribersDropped.Inc()
	}
}

// PipelineCollector instruments generation runs. It satisfies
// pipeline.Metrics.
type PipelineCollector struct {
	generationsActive  prometheus.Gauge
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	phaseDuration      *prometheus.HistogramVec
}

// NewPipelineCollector creates and registers the pipeline collectors.
func NewPipelineCollector() *PipelineCollector {
	return &PipelineCollector{
		generationsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tripforge_generations_active",
			Help: "Generations currently in flight.",
		}),
		generationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tripforge_generations_total",
			Help: "Finished generations, by outcome.",
		}, []string{"outcome"}),
		generationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripforge_generation_duration_seconds",
			Help:    "End-to-end generation duration, by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"outcome"}),
		phaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripforge_phase_duration_seconds",
			Help:    "Pipeline phase duration, by phase.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
	}
}

func (c *PipelineCollector) GenerationStarted() {
	c.generationsActive.Inc()
}

func (c *PipelineCollector) GenerationFinished(outcome string, duration time.Duration) {
	c.generationsActive.Dec()
	c.generationsTotal.WithLabelValues(outcome).Inc()
	c.generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *PipelineCollector) PhaseCompleted(phase string, duration time.Duration) {
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}
