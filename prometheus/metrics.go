package prometheus

import (
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the custom Prometheus metrics for the application.
type Metrics struct {
	Registry        *prometheus.Registry
	ActiveTasks     prometheus.Gauge
	PublishState    prometheus.Gauge
	PublishAttempts prometheus.Counter
	PublishRetries  prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ForbiddenHits   prometheus.Counter
	NetworkRequests prometheus.Counter
}

// NewMetrics initializes a new custom Prometheus registry and returns an instance of Metrics.
func NewMetrics(ua string) *Metrics {
	// drop "/1.0"
	ua = strings.Split(ua, "/")[0]

	reg := prometheus.NewRegistry()

	// Register default Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())

	opts := collectors.ProcessCollectorOpts{
		PidFn:        func() (int, error) { return os.Getpid(), nil },
		Namespace:    ua,
		ReportErrors: true, // or false, depending on your needs
	}
	reg.MustRegister(collectors.NewProcessCollector(opts))

	activeTasks := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ua,
		Name:      "ActiveRequestTasks",
		Help:      "Shows capability request tasks currently in flight",
	})
	reg.MustRegister(activeTasks)

	publishState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ua,
		Name:      "PublishState",
		Help:      "Shows the current publish state as its numeric value",
	})
	reg.MustRegister(publishState)

	publishAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "PublishAttempts",
		Help:      "Counts capability documents submitted to the network",
	})
	reg.MustRegister(publishAttempts)

	publishRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "PublishRetries",
		Help:      "Counts publish attempts rescheduled after a retryable failure",
	})
	reg.MustRegister(publishRetries)

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "CacheHits",
		Help:      "Counts capability lookups answered from the cache",
	})
	reg.MustRegister(cacheHits)

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "CacheMisses",
		Help:      "Counts capability lookups that required the network",
	})
	reg.MustRegister(cacheMisses)

	forbiddenHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "ForbiddenShortCircuits",
		Help:      "Counts requests rejected locally while the forbidden window is active",
	})
	reg.MustRegister(forbiddenHits)

	networkRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ua,
		Name:      "NetworkRequests",
		Help:      "Counts outbound capability exchanges submitted to the network",
	})
	reg.MustRegister(networkRequests)

	metrics := &Metrics{
		Registry:        reg,
		ActiveTasks:     activeTasks,
		PublishState:    publishState,
		PublishAttempts: publishAttempts,
		PublishRetries:  publishRetries,
		CacheHits:       cacheHits,
		CacheMisses:     cacheMisses,
		ForbiddenHits:   forbiddenHits,
		NetworkRequests: networkRequests,
	}

	return metrics
}

// Handler returns an HTTP handler that serves the metrics on a specified endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
