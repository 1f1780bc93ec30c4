// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	ProgramSaves  *prometheus.CounterVec
	Reloads       *prometheus.CounterVec
}

// NewCollector creates and registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		ProgramSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_saves_total",
				Help:      "save_program requests by outcome",
			},
			[]string{"outcome"},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_reloads_total",
				Help:      "Program document reloads by outcome",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Logins,
		c.Registrations,
		c.ProgramSaves,
		c.Reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Outcome labels.
const (
	OK      = "ok"
	Failed  = "failed"
	Invalid = "invalid"
)

// ObserveRequest records one finished HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CountLogin, CountRegistration, CountProgramSave and CountReload are
// no-ops on a nil Collector.
func (c *Collector) CountLogin(outcome string) {
	if c != nil {
		c.Logins.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) CountRegistration(outcome string) {
	if c != nil {
		c.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) CountProgramSave(outcome string) {
	if c != nil {
		c.ProgramSaves.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) CountReload(outcome string) {
	if c != nil {
		c.Reloads.WithLabelValues(outcome).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }
