// Package observability holds the Prometheus collectors for raster
// construction, storage and event publishing.
package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/h3-raster-store/internal/raster"
)

var (
	rastersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_created_total",
			Help: "Rasters created by representation kind.",
		},
		[]string{"kind"},
	)

	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_validation_failures_total",
			Help: "Rejected raster constructions by reason.",
		},
		[]string{"reason"},
	)

	copiedCells = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raster_copied_cells_total",
			Help: "Cells deep copied while cloning rasters.",
		},
	)

	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_store_op_total",
			Help: "Raster store operations by result.",
		},
		[]string{"op", "result"},
	)

	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raster_store_op_duration_seconds",
			Help:    "Latency of raster store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raster_events_dropped_total",
			Help: "Lifecycle events dropped because the publish queue was full.",
		},
	)

	eventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_events_applied_total",
			Help: "Lifecycle events consumed from other instances by op and result.",
		},
		[]string{"op", "result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		rastersCreated, validationFailures, copiedCells, storeOps, storeOpDuration, eventsDropped,
		eventsApplied,
	}
}

// Init registers the collectors with reg, or the default registerer when reg
// is nil. Registering twice with the same registry is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOps.WithLabelValues(op, result).Inc()
	storeOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncEventsDropped() { eventsDropped.Inc() }

// ObserveEventApplied records a consumed lifecycle event; result is one of
// evicted, skipped or error.
func ObserveEventApplied(op, result string) {
	eventsApplied.WithLabelValues(op, result).Inc()
}

// RasterObserver feeds factory outcomes into the raster_* collectors.
type RasterObserver struct{}

var _ raster.Observer = RasterObserver{}

func (RasterObserver) RasterCreated(kind string) {
	rastersCreated.WithLabelValues(kind).Inc()
}

func (RasterObserver) ValidationFailed(reason string) {
	validationFailures.WithLabelValues(reason).Inc()
}

func (RasterObserver) CellsCopied(n int) {
	if n > 0 {
		copiedCells.Add(float64(n))
	}
}
