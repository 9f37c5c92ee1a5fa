// Package reconcile settles active leases against an external event feed.
//
// One Reconciler serves both pools: the deposit policy reads a chain oracle,
// the claim policy reads operator confirmations. Each sweep visits every active
// lease of the policy's kind, credits at most one accepted event per lease and
// expires leases that outlived their window plus the grace period.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Rejection reasons reported to metrics and debug logs.
const (
	RejectDuplicate     = "duplicate"
	RejectConfirmations = "confirmations"
	RejectAsset         = "asset"
	RejectWindow        = "window"
	RejectAmount        = "amount"
)

var errSourceUnavailable = errors.New("event source unavailable")

// Candidate is one event that may settle a lease.
type Candidate struct {
	models.Transfer
	// Rejected marks an explicit refusal. It ends the lease without a credit.
	Rejected bool
}

// Source returns the events observed for a lease since it was assigned.
type Source interface {
	Fetch(ctx context.Context, l *models.Lease) ([]Candidate, error)
}

// Policy is what differs between the deposit and claim pipelines.
type Policy struct {
	Name             string
	Asset            string
	MinConfirmations int
	TransactionType  string
	Source           Source
	// Accept is an extra predicate run after the built-in checks. Returns a
	// rejection reason when the candidate does not qualify.
	Accept       func(l *models.Lease, c Candidate) (bool, string)
	ExpiryReason string
	// Noun names the event in operator notifications.
	Noun string
}

type Config struct {
	LeaseTimeout time.Duration
	GraceWindow  time.Duration
	Workers      int
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked  int
	Credited int
	Released int
	Expired  int
	Failed   int
}

type result int

const (
	resultPending result = iota
	resultCredited
	resultReleased
	resultExpired
)

func (s *SweepResult) add(r result, err error) {
	if err != nil {
		s.Failed++
		return
	}
	switch r {
	case resultCredited:
		s.Credited++
	case resultReleased:
		s.Released++
	case resultExpired:
		s.Expired++
	}
}

type Reconciler struct {
	store    store.Store
	leases   *lease.Manager
	policy   Policy
	cfg      Config
	notifier notify.Sink
	metrics  *metrics.PoolMetrics
}

func New(st store.Store, leases *lease.Manager, policy Policy, cfg Config, notifier notify.Sink, m *metrics.PoolMetrics) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.LogSink{}
	}
	return &Reconciler{
		store:    st,
		leases:   leases,
		policy:   policy,
		cfg:      cfg,
		notifier: notifier,
		metrics:  m,
	}
}

func (r *Reconciler) Name() string {
	return r.policy.Name
}

func (r *Reconciler) kind() string {
	return string(r.leases.Kind())
}

// Sweep processes every active lease once. Per-lease failures are logged and
// counted; only a failure to list leases is returned.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	leases, err := r.leases.ListActive(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list active leases: %w", err)
	}
	r.metrics.SetActiveLeases(r.kind(), len(leases))

	res := SweepResult{Checked: len(leases)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i := range leases {
		l := leases[i]
		g.Go(func() error {
			out, err := r.processLease(ctx, l)
			if err != nil {
				r.logLeaseError(l, err)
			}
			mu.Lock()
			res.add(out, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if res.Credited+res.Released+res.Expired+res.Failed > 0 {
		zap.L().Info("Sweep finished",
			zap.String("loop", r.policy.Name),
			zap.Int("checked", res.Checked),
			zap.Int("credited", res.Credited),
			zap.Int("released", res.Released),
			zap.Int("expired", res.Expired),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (r *Reconciler) logLeaseError(l models.Lease, err error) {
	if errors.Is(err, errSourceUnavailable) {
		r.metrics.OracleError(r.kind())
		zap.L().Warn("Event source unavailable, retrying next sweep",
			zap.String("loop", r.policy.Name),
			zap.String("lease_id", l.Id),
			zap.String("resource_key", l.ResourceKey),
			zap.Error(err))
		return
	}
	zap.L().Error("Failed to reconcile lease",
		zap.String("loop", r.policy.Name),
		zap.String("lease_id", l.Id),
		zap.Error(err))
}

// processLease runs one verification pass and, once the lease is past its
// expiry plus grace, the final check that decides expiry.
func (r *Reconciler) processLease(ctx context.Context, l models.Lease) (result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.LeaseTimeout)
	defer cancel()

	res, err := r.pass(ctx, &l)
	if err != nil || res != resultPending {
		return res, err
	}

	if !r.leases.Now().After(l.ExpiresAt.Add(r.cfg.GraceWindow)) {
		return resultPending, nil
	}

	res, err = r.pass(ctx, &l)
	if err != nil || res != resultPending {
		return res, err
	}
	return r.expire(ctx, &l)
}

// pass fetches events for l and settles it with the first decisive candidate.
func (r *Reconciler) pass(ctx context.Context, l *models.Lease) (result, error) {
	candidates, err := r.policy.Source.Fetch(ctx, l)
	if err != nil {
		return resultPending, fmt.Errorf("%w: %w", errSourceUnavailable, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})

	for _, c := range candidates {
		if c.Rejected {
			return r.release(ctx, l, c)
		}

		reason, err := r.verify(ctx, l, c)
		if err != nil {
			return resultPending, err
		}
		if reason != "" {
			if reason != RejectDuplicate {
				r.metrics.TransferRejected(r.kind(), reason)
			}
			zap.L().Debug("Candidate rejected",
				zap.String("loop", r.policy.Name),
				zap.String("lease_id", l.Id),
				zap.String("external_ref", c.ExternalRef),
				zap.String("reason", reason))
			continue
		}

		err = r.credit(ctx, l, c)
		switch {
		case err == nil:
			return resultCredited, nil
		case errors.Is(err, store.ErrDuplicateCredit):
			continue
		case errors.Is(err, store.ErrLeaseInactive):
			return resultPending, nil
		default:
			return resultPending, err
		}
	}
	return resultPending, nil
}

// verify returns the first reason c cannot settle l, or "" when it can.
func (r *Reconciler) verify(ctx context.Context, l *models.Lease, c Candidate) (string, error) {
	exists, err := r.store.CreditExists(ctx, c.ExternalRef)
	if err != nil {
		return "", err
	}
	if exists {
		return RejectDuplicate, nil
	}
	if c.Confirmations < r.policy.MinConfirmations {
		return RejectConfirmations, nil
	}
	if !strings.EqualFold(c.Asset, r.policy.Asset) {
		return RejectAsset, nil
	}
	if !l.InWindow(c.Timestamp) {
		return RejectWindow, nil
	}
	if !c.Amount.IsPositive() {
		return RejectAmount, nil
	}
	if r.policy.Accept != nil {
		if ok, reason := r.policy.Accept(l, c); !ok {
			return reason, nil
		}
	}
	return "", nil
}

// credit fulfills l with c in one transaction: lease, credit event, balance
// and resource counters commit together or not at all.
func (r *Reconciler) credit(ctx context.Context, l *models.Lease, c Candidate) error {
	asset := strings.ToUpper(r.policy.Asset)
	var event *models.CreditEvent

	err := r.store.InTx(ctx, func(tx store.Tx) error {
		now := r.leases.Now()
		changed, err := r.leases.TerminateIn(ctx, tx, l, models.LeaseOutcomeFulfilled, "")
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("%w: %s", store.ErrLeaseInactive, l.Id)
		}

		event = &models.CreditEvent{
			Id:          uuid.New().String(),
			LeaseId:     l.Id,
			ExternalRef: c.ExternalRef,
			Amount:      c.Amount,
			Asset:       asset,
			CreditedTo:  l.HolderId,
			CreatedAt:   now,
		}
		if err := tx.InsertCreditEvent(ctx, event); err != nil {
			return err
		}

		_, err = tx.ApplyBalanceChange(ctx, store.BalanceChangeParams{
			UserId:          l.HolderId,
			Asset:           asset,
			Amount:          c.Amount,
			TransactionType: r.policy.TransactionType,
			ExternalRef:     c.ExternalRef,
			LeaseId:         l.Id,
			Reference:       l.ResourceKey,
		}, now)
		if err != nil {
			return err
		}
		return tx.AddCreditedAmount(ctx, l.ResourceId, c.Amount, now)
	})
	if err != nil {
		return err
	}

	amount, _ := c.Amount.Float64()
	r.metrics.Credited(r.kind(), asset, amount)
	r.metrics.LeaseEnded(r.kind(), string(models.LeaseOutcomeFulfilled))
	zap.L().Info("Lease fulfilled",
		zap.String("loop", r.policy.Name),
		zap.String("lease_id", l.Id),
		zap.String("holder_id", l.HolderId),
		zap.String("external_ref", c.ExternalRef),
		zap.String("amount", c.Amount.String()),
		zap.String("asset", asset))

	r.notify(ctx, notify.Notification{
		Level: notify.LevelInfo,
		Title: fmt.Sprintf("%s credited", r.policy.Noun),
		Fields: map[string]string{
			"lease_id":     l.Id,
			"user_id":      l.HolderId,
			"resource":     l.ResourceKey,
			"amount":       event.Amount.String() + " " + asset,
			"external_ref": c.ExternalRef,
		},
	})
	return nil
}

func (r *Reconciler) release(ctx context.Context, l *models.Lease, c Candidate) (result, error) {
	changed, err := r.end(ctx, l, models.LeaseOutcomeReleased, lease.ReasonRejected)
	if err != nil || !changed {
		return resultPending, err
	}
	r.notify(ctx, notify.Notification{
		Level: notify.LevelWarn,
		Title: fmt.Sprintf("%s rejected", r.policy.Noun),
		Fields: map[string]string{
			"lease_id":     l.Id,
			"user_id":      l.HolderId,
			"resource":     l.ResourceKey,
			"external_ref": c.ExternalRef,
		},
	})
	return resultReleased, nil
}

func (r *Reconciler) expire(ctx context.Context, l *models.Lease) (result, error) {
	changed, err := r.end(ctx, l, models.LeaseOutcomeExpired, r.policy.ExpiryReason)
	if err != nil || !changed {
		return resultPending, err
	}
	r.notify(ctx, notify.Notification{
		Level: notify.LevelInfo,
		Title: "Lease expired",
		Fields: map[string]string{
			"kind":     r.kind(),
			"lease_id": l.Id,
			"user_id":  l.HolderId,
			"resource": l.ResourceKey,
		},
	})
	return resultExpired, nil
}

func (r *Reconciler) end(ctx context.Context, l *models.Lease, outcome models.LeaseOutcome, reason string) (bool, error) {
	var changed bool
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		changed, err = r.leases.TerminateIn(ctx, tx, l, outcome, reason)
		return err
	})
	if err != nil || !changed {
		return false, err
	}

	r.metrics.LeaseEnded(r.kind(), string(outcome))
	zap.L().Info("Lease ended",
		zap.String("loop", r.policy.Name),
		zap.String("lease_id", l.Id),
		zap.String("outcome", string(outcome)),
		zap.String("reason", reason),
		zap.String("resource_key", l.ResourceKey))
	return true, nil
}

func (r *Reconciler) notify(ctx context.Context, n notify.Notification) {
	if err := r.notifier.Notify(ctx, n); err != nil {
		zap.L().Warn("Failed to deliver notification",
			zap.String("title", n.Title),
			zap.Error(err))
	}
}
