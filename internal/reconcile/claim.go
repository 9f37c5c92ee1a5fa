package reconcile

import (
	"context"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/store"
)

const (
	LoopClaim = "claim"

	TransactionTypeClaim = "claim_buy"
)

// ConfirmationFeed turns operator confirmations of a claim lease into candidates.
// An operator verdict counts as a single confirmation.
type ConfirmationFeed struct {
	Source store.ConfirmationSource
}

func (f ConfirmationFeed) Fetch(ctx context.Context, l *models.Lease) ([]Candidate, error) {
	confirmations, err := f.Source.FetchConfirmations(ctx, l.Id, l.AssignedAt)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(confirmations))
	for _, c := range confirmations {
		candidates = append(candidates, Candidate{
			Transfer: models.Transfer{
				ExternalRef:   c.ExternalRef,
				Amount:        c.Amount,
				Confirmations: 1,
				Timestamp:     c.CreatedAt,
				Asset:         c.Asset,
			},
			Rejected: !c.Approved,
		})
	}
	return candidates, nil
}

// NewClaimReconciler settles claim leases from operator confirmations. Expiry
// cancels the pending buy order with lease.ReasonExpired.
func NewClaimReconciler(st store.Store, leases *lease.Manager, pc models.PoolConfig, cfg Config, n notify.Sink, m *metrics.PoolMetrics) *Reconciler {
	return New(st, leases, Policy{
		Name:             LoopClaim,
		Asset:            pc.ClaimAsset,
		MinConfirmations: 1,
		TransactionType:  TransactionTypeClaim,
		Source:           ConfirmationFeed{Source: st},
		ExpiryReason:     lease.ReasonExpired,
		Noun:             "Claim",
	}, cfg, n, m)
}
