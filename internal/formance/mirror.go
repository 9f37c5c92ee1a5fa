package formance

import (
	"context"
	"fmt"
	"time"

	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"go.uber.org/zap"
)

// CreditPoster is the ledger side of the mirror.
type CreditPoster interface {
	PostCredit(ctx context.Context, c models.CreditEvent) error
}

// Mirror drains the credit outbox into the ledger. Credits are stamped only
// after the ledger accepted them, so a crash between the two steps re-posts
// the credit and the ledger reference conflict absorbs it.
type Mirror struct {
	poster  CreditPoster
	outbox  store.MirrorStore
	batch   int
	metrics *metrics.PoolMetrics
	now     func() time.Time
}

func NewMirror(poster CreditPoster, outbox store.MirrorStore, batch int, m *metrics.PoolMetrics) *Mirror {
	if batch <= 0 {
		batch = 50
	}
	return &Mirror{poster: poster, outbox: outbox, batch: batch, metrics: m, now: time.Now}
}

// Sweep posts one batch of unmirrored credits and returns how many were stamped.
// It stops at the first ledger error so credits keep their order.
func (m *Mirror) Sweep(ctx context.Context) (int, error) {
	credits, err := m.outbox.ListUnmirroredCredits(ctx, m.batch)
	if err != nil {
		return 0, err
	}

	mirrored := 0
	for _, c := range credits {
		if err := m.poster.PostCredit(ctx, c); err != nil {
			return mirrored, fmt.Errorf("credit %s: %w", c.ExternalRef, err)
		}
		if err := m.outbox.MarkCreditMirrored(ctx, c.Id, m.now()); err != nil {
			return mirrored, err
		}
		mirrored++
		m.metrics.CreditMirrored()
	}

	if mirrored > 0 {
		zap.L().Info("Credits mirrored to ledger", zap.Int("count", mirrored))
	}
	return mirrored, nil
}
