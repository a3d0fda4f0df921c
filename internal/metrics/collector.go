package metrics

import (
	"context"
	stderr "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s3pipe/s3pipe/pkg/errors"
)

// Config selects how metrics are exposed.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// NewDefaultConfig returns the default metrics configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "s3pipe",
	}
}

// Collector records request-level metrics and serves them over HTTP
// in Prometheus format. A disabled collector accepts records and
// discards them.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transferBytes   *prometheus.CounterVec
	errorCounter    *prometheus.CounterVec
	pendingRequests prometheus.Gauge
	poolIdle        prometheus.Gauge
	poolTotal       prometheus.Gauge

	server *http.Server
}

// NewCollector creates a collector. A nil config selects defaults.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	c := &Collector{config: config}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	constLabels := prometheus.Labels(config.Labels)

	c.requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "requests_total",
		Help:        "Completed requests by operation and outcome.",
		ConstLabels: constLabels,
	}, []string{"op", "outcome"})

	c.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Name:        "request_duration_seconds",
		Help:        "Request latency by operation.",
		ConstLabels: constLabels,
		Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"op"})

	c.transferBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "transfer_bytes_total",
		Help:        "Payload bytes moved by direction.",
		ConstLabels: constLabels,
	}, []string{"direction"})

	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "errors_total",
		Help:        "Failed requests by operation and error code.",
		ConstLabels: constLabels,
	}, []string{"op", "code"})

	c.pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "pending_requests",
		Help:        "Requests currently in flight.",
		ConstLabels: constLabels,
	})

	c.poolIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "pool_idle_connections",
		Help:        "Idle connections in the pool.",
		ConstLabels: constLabels,
	})

	c.poolTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "pool_total_connections",
		Help:        "Connections created by the pool and not yet closed.",
		ConstLabels: constLabels,
	})

	collectors := []prometheus.Collector{
		c.requestCounter, c.requestDuration, c.transferBytes,
		c.errorCounter, c.pendingRequests, c.poolIdle, c.poolTotal,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Handler returns the Prometheus scrape handler, or nil when the
// collector is disabled.
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the scrape endpoint in the background.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the scrape endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RequestStarted marks a request in flight.
func (c *Collector) RequestStarted() {
	if c.registry == nil {
		return
	}
	c.pendingRequests.Inc()
}

// RecordRequest records a completed request. bytes counts the payload
// moved; direction is "up" or "down".
func (c *Collector) RecordRequest(op, direction string, duration time.Duration, bytes int64, err error) {
	if c.registry == nil {
		return
	}
	c.pendingRequests.Dec()
	c.requestDuration.WithLabelValues(op).Observe(duration.Seconds())

	if err != nil {
		c.requestCounter.WithLabelValues(op, "error").Inc()
		c.errorCounter.WithLabelValues(op, errorCode(err)).Inc()
		return
	}
	c.requestCounter.WithLabelValues(op, "success").Inc()
	if bytes > 0 && direction != "" {
		c.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

// ObservePool publishes pool occupancy.
func (c *Collector) ObservePool(idle, total int) {
	if c.registry == nil {
		return
	}
	c.poolIdle.Set(float64(idle))
	c.poolTotal.Set(float64(total))
}

func errorCode(err error) string {
	var pipeErr *errors.S3PipeError
	if stderr.As(err, &pipeErr) {
		return string(pipeErr.Code)
	}
	return "unknown"
}
