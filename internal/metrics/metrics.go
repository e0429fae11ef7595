package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the crawl's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	probesTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector on its own registry
func NewCollector() *Collector {
	mc := &Collector{
		registry: prometheus.NewRegistry(),
	}

	mc.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophercrawl_requests_total",
			Help: "Total number of selector requests",
		},
		[]string{"mode"},
	)

	mc.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophercrawl_failures_total",
			Help: "Failed selector requests by failure kind",
		},
		[]string{"kind"},
	)

	mc.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophercrawl_bytes_total",
			Help: "Payload bytes fetched",
		},
		[]string{"mode"},
	)

	mc.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophercrawl_external_probes_total",
			Help: "External server probes by result",
		},
		[]string{"result"},
	)

	mc.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gophercrawl_request_duration_seconds",
			Help:    "Selector request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	mc.registry.MustRegister(
		mc.requestsTotal,
		mc.failuresTotal,
		mc.bytesTotal,
		mc.probesTotal,
		mc.requestDuration,
	)

	return mc
}

// Registry exposes the underlying registry
func (mc *Collector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// ObserveRequest records one completed or failed request
func (mc *Collector) ObserveRequest(mode string, d time.Duration, size int) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(mode).Inc()
	mc.requestDuration.WithLabelValues(mode).Observe(d.Seconds())
	if size > 0 {
		mc.bytesTotal.WithLabelValues(mode).Add(float64(size))
	}
}

// ObserveFailure counts a per-selector failure
func (mc *Collector) ObserveFailure(kind string) {
	if mc == nil {
		return
	}
	mc.failuresTotal.WithLabelValues(kind).Inc()
}

// ObserveProbe counts an external probe
func (mc *Collector) ObserveProbe(up bool) {
	if mc == nil {
		return
	}
	result := "down"
	if up {
		result = "up"
	}
	mc.probesTotal.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is done
func (mc *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
