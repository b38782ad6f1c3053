package telemetry

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Counter struct {
	val atomic.Int64
}

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

type Gauge struct {
	val atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.val.Store(v) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// LatencyTracker keeps the most recent maxKeep samples for percentile reads.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	maxKeep int
}

func NewLatencyTracker(maxKeep int) *LatencyTracker {
	return &LatencyTracker{maxKeep: maxKeep}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.samples = append(lt.samples, d)
	if len(lt.samples) > lt.maxKeep {
		lt.samples = lt.samples[len(lt.samples)-lt.maxKeep:]
	}
}

func (lt *LatencyTracker) P50() time.Duration { return lt.percentile(0.50) }
func (lt *LatencyTracker) P99() time.Duration { return lt.percentile(0.99) }

func (lt *LatencyTracker) percentile(p float64) time.Duration {
	lt.mu.Lock()
	sorted := slices.Clone(lt.samples)
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Metrics is the global metrics registry.
var Metrics = struct {
	SignalsReceived    Counter
	AuthFailures       Counter
	ValidationFailures Counter
	OrdersSent         Counter
	OrderErrors        Counter
	OrderRetries       Counter
	NettingCloses      Counter
	DispatchSkipped    Counter
	DispatchDropped    Counter
	DispatchTimeouts   Counter
	LedgerWriteErrors  Counter
	BreakersOpen       Gauge
	SignalLatency      *LatencyTracker
	PrimaryLatency     *LatencyTracker
}{
	SignalLatency:  NewLatencyTracker(1000),
	PrimaryLatency: NewLatencyTracker(1000),
}

// ExecutionResults counts ledgered outcomes by venue and status.
var ExecutionResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "bridge_execution_results_total", Help: "Execution results by venue and status"},
	[]string{"venue", "status"},
)

// RegisterPrometheus exposes the atomic registry through reg.
func RegisterPrometheus(reg prometheus.Registerer) error {
	counters := map[string]*Counter{
		"bridge_signals_received_total":    &Metrics.SignalsReceived,
		"bridge_auth_failures_total":       &Metrics.AuthFailures,
		"bridge_validation_failures_total": &Metrics.ValidationFailures,
		"bridge_orders_sent_total":         &Metrics.OrdersSent,
		"bridge_order_errors_total":        &Metrics.OrderErrors,
		"bridge_order_retries_total":       &Metrics.OrderRetries,
		"bridge_netting_closes_total":      &Metrics.NettingCloses,
		"bridge_dispatch_skipped_total":    &Metrics.DispatchSkipped,
		"bridge_dispatch_dropped_total":    &Metrics.DispatchDropped,
		"bridge_dispatch_timeouts_total":   &Metrics.DispatchTimeouts,
		"bridge_ledger_write_errors_total": &Metrics.LedgerWriteErrors,
	}
	collectors := []prometheus.Collector{ExecutionResults}
	for name, c := range counters {
		c := c
		collectors = append(collectors, prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: name},
			func() float64 { return float64(c.Value()) },
		))
	}
	collectors = append(collectors,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "bridge_breakers_open", Help: "Venues with an open circuit breaker"},
			func() float64 { return float64(Metrics.BreakersOpen.Value()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "bridge_primary_latency_p99_seconds", Help: "Primary path latency p99"},
			func() float64 { return Metrics.PrimaryLatency.P99().Seconds() },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "bridge_signal_latency_p99_seconds", Help: "Signal receipt to primary result p99"},
			func() float64 { return Metrics.SignalLatency.P99().Seconds() },
		),
	)
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
