package reconcile

import (
	"context"
	"fmt"
	"time"

	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/store"

	"go.uber.org/zap"
)

const LoopHeal = "heal"

// Healer forces LEASED resources that no active lease references back to
// AVAILABLE once they have been in that state longer than grace.
type Healer struct {
	store    store.Store
	grace    time.Duration
	notifier notify.Sink
	metrics  *metrics.PoolMetrics
	now      func() time.Time
}

func NewHealer(st store.Store, grace time.Duration, n notify.Sink, m *metrics.PoolMetrics) *Healer {
	if n == nil {
		n = notify.LogSink{}
	}
	return &Healer{store: st, grace: grace, notifier: n, metrics: m, now: time.Now}
}

func (h *Healer) WithClock(now func() time.Time) *Healer {
	h.now = now
	return h
}

// Sweep returns the resources it healed.
func (h *Healer) Sweep(ctx context.Context) ([]models.PoolResource, error) {
	orphans, err := h.store.FindOrphanedResources(ctx, h.now().Add(-h.grace))
	if err != nil {
		return nil, err
	}

	var healed []models.PoolResource
	for _, r := range orphans {
		var released bool
		err := h.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			released, err = tx.ReleaseResource(ctx, r.Id, h.now())
			return err
		})
		if err != nil {
			zap.L().Error("Failed to heal orphaned resource",
				zap.String("resource_id", r.Id),
				zap.Error(err))
			continue
		}
		if !released {
			continue
		}

		healed = append(healed, r)
		h.metrics.OrphanHealed(string(r.Kind))
		zap.L().Error("Released orphaned resource",
			zap.String("resource_id", r.Id),
			zap.String("kind", string(r.Kind)),
			zap.String("resource_key", r.ResourceKey),
			zap.Time("last_updated", r.UpdatedAt),
			zap.Error(store.ErrInvariantViolation))

		if err := h.notifier.Notify(ctx, notify.Notification{
			Level: notify.LevelAlert,
			Title: "Orphaned resource released",
			Fields: map[string]string{
				"kind":     string(r.Kind),
				"resource": r.ResourceKey,
				"error":    fmt.Sprintf("%v: LEASED without active lease", store.ErrInvariantViolation),
			},
		}); err != nil {
			zap.L().Warn("Failed to deliver notification", zap.Error(err))
		}
	}
	return healed, nil
}

// Loop schedules Sweep.
func (h *Healer) Loop(interval time.Duration) *Loop {
	return NewLoop(LoopHeal, interval, func(ctx context.Context) error {
		_, err := h.Sweep(ctx)
		return err
	}, h.metrics)
}
