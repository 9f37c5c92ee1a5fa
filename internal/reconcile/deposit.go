package reconcile

import (
	"context"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/oracle"
	"wallet-pool-go/internal/store"
)

const (
	LoopDeposit = "deposit"

	TransactionTypeDeposit = "deposit"
)

// ChainSource reads incoming transfers to the leased address.
type ChainSource struct {
	Oracle oracle.ChainOracle
}

func (s ChainSource) Fetch(ctx context.Context, l *models.Lease) ([]Candidate, error) {
	transfers, err := s.Oracle.FetchTransfers(ctx, l.ResourceKey, l.AssignedAt)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(transfers))
	for _, t := range transfers {
		candidates = append(candidates, Candidate{Transfer: t})
	}
	return candidates, nil
}

// NewDepositReconciler settles wallet leases from on-chain transfers of pc.Asset.
func NewDepositReconciler(st store.Store, leases *lease.Manager, o oracle.ChainOracle, pc models.PoolConfig, cfg Config, n notify.Sink, m *metrics.PoolMetrics) *Reconciler {
	return New(st, leases, Policy{
		Name:             LoopDeposit,
		Asset:            pc.Asset,
		MinConfirmations: pc.MinConfirmations,
		TransactionType:  TransactionTypeDeposit,
		Source:           ChainSource{Oracle: o},
		ExpiryReason:     lease.ReasonExpired,
		Noun:             "Deposit",
	}, cfg, n, m)
}
