package server

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "edupanel"

// Metrics exports upload lifecycle and request metrics to Prometheus.
type Metrics struct {
	uploads         *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	blobDeletes     *prometheus.CounterVec
	sweepDeleted    prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on reg. Collectors already registered
// by an earlier server are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error
	if m.uploads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "uploads",
		Name:      "files_total",
		Help:      "Uploaded file parts by outcome.",
	}, []string{"outcome", "reason"})); err != nil {
		return nil, err
	}
	if m.compensations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "uploads",
		Name:      "compensations_total",
		Help:      "Staged uploads removed after a failed create or update.",
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if m.blobDeletes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "blobs",
		Name:      "deletes_total",
		Help:      "Blob deletions by reason and outcome.",
	}, []string{"reason", "outcome"})); err != nil {
		return nil, err
	}
	if m.sweepDeleted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "sweep",
		Name:      "deleted_blobs_total",
		Help:      "Orphaned blobs removed by the sweeper.",
	})); err != nil {
		return nil, err
	}
	if m.requestDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNewMetrics is NewMetrics that panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) uploadAccepted() {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("accepted", "").Inc()
}

func (m *Metrics) uploadRejected(reason string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("rejected", reason).Inc()
}

func (m *Metrics) compensated(op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.compensations.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) blobDeleted(reason string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.blobDeletes.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) sweptBlobs(n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweepDeleted.Add(float64(n))
}

func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
