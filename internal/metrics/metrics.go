// Package metrics exposes Prometheus collectors for pool, lease, sweep and oracle activity.
// All methods are safe on a nil receiver.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PoolMetrics struct {
	leasesAcquired  *prometheus.CounterVec
	leasesReused    *prometheus.CounterVec
	leasesEnded     *prometheus.CounterVec
	exhausted       *prometheus.CounterVec
	credits         *prometheus.CounterVec
	creditedAmount  *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepsSkipped   *prometheus.CounterVec
	oracleErrors    *prometheus.CounterVec
	orphansHealed   *prometheus.CounterVec
	activeLeases    *prometheus.GaugeVec
	mirroredCredits prometheus.Counter
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			leasesAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_leases_acquired_total",
				Help: "Count of new leases created by resource kind.",
			}, []string{"kind"}),
			leasesReused: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_leases_reused_total",
				Help: "Count of acquire calls answered with the holder's existing lease.",
			}, []string{"kind"}),
			leasesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_leases_ended_total",
				Help: "Count of leases terminated by kind and outcome.",
			}, []string{"kind", "outcome"}),
			exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_exhausted_total",
				Help: "Count of acquire calls that found no available resource.",
			}, []string{"kind"}),
			credits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_credits_total",
				Help: "Count of credit events applied by kind.",
			}, []string{"kind"}),
			creditedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_credited_amount_total",
				Help: "Sum of credited amounts by asset.",
			}, []string{"asset"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_transfer_rejections_total",
				Help: "Count of candidate transfers rejected during verification by reason.",
			}, []string{"kind", "reason"}),
			sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "walletpool_sweep_duration_seconds",
				Help:    "Duration of reconciliation sweeps by loop.",
				Buckets: prometheus.DefBuckets,
			}, []string{"loop"}),
			sweepsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_sweeps_skipped_total",
				Help: "Count of ticks skipped because the previous sweep was still running.",
			}, []string{"loop"}),
			oracleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_oracle_errors_total",
				Help: "Count of failed oracle or confirmation source calls by kind.",
			}, []string{"kind"}),
			orphansHealed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "walletpool_orphans_healed_total",
				Help: "Count of LEASED resources without an active lease forced back to AVAILABLE.",
			}, []string{"kind"}),
			activeLeases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "walletpool_active_leases",
				Help: "Active leases seen by the last sweep.",
			}, []string{"kind"}),
			mirroredCredits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "walletpool_ledger_mirrored_total",
				Help: "Count of credit events posted to the external ledger.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.leasesAcquired,
			poolRegistry.leasesReused,
			poolRegistry.leasesEnded,
			poolRegistry.exhausted,
			poolRegistry.credits,
			poolRegistry.creditedAmount,
			poolRegistry.rejections,
			poolRegistry.sweepDuration,
			poolRegistry.sweepsSkipped,
			poolRegistry.oracleErrors,
			poolRegistry.orphansHealed,
			poolRegistry.activeLeases,
			poolRegistry.mirroredCredits,
		)
	})
	return poolRegistry
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *PoolMetrics) LeaseAcquired(kind string) {
	if m == nil {
		return
	}
	m.leasesAcquired.WithLabelValues(label(kind)).Inc()
}

func (m *PoolMetrics) LeaseReused(kind string) {
	if m == nil {
		return
	}
	m.leasesReused.WithLabelValues(label(kind)).Inc()
}

func (m *PoolMetrics) LeaseEnded(kind, outcome string) {
	if m == nil {
		return
	}
	m.leasesEnded.WithLabelValues(label(kind), label(outcome)).Inc()
}

func (m *PoolMetrics) Exhausted(kind string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(label(kind)).Inc()
}

func (m *PoolMetrics) Credited(kind, asset string, amount float64) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(label(kind)).Inc()
	m.creditedAmount.WithLabelValues(label(asset)).Add(amount)
}

func (m *PoolMetrics) TransferRejected(kind, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(label(kind), label(reason)).Inc()
}

func (m *PoolMetrics) ObserveSweep(loop string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(label(loop)).Observe(elapsed.Seconds())
}

func (m *PoolMetrics) SweepSkipped(loop string) {
	if m == nil {
		return
	}
	m.sweepsSkipped.WithLabelValues(label(loop)).Inc()
}

func (m *PoolMetrics) OracleError(kind string) {
	if m == nil {
		return
	}
	m.oracleErrors.WithLabelValues(label(kind)).Inc()
}

func (m *PoolMetrics) OrphanHealed(kind string) {
	if m == nil {
		return
	}
	m.orphansHealed.WithLabelValues(label(kind)).Inc()
}

func (m *PoolMetrics) SetActiveLeases(kind string, n int) {
	if m == nil {
		return
	}
	m.activeLeases.WithLabelValues(label(kind)).Set(float64(n))
}

func (m *PoolMetrics) CreditMirrored() {
	if m == nil {
		return
	}
	m.mirroredCredits.Inc()
}
