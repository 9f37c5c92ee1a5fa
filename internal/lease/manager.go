// Package lease hands out exclusive, time-bounded leases over pool resources.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Order cancellation reasons recorded when a claim lease ends without settlement.
const (
	ReasonExpired    = "resource expired"
	ReasonRejected   = "rejected by operator"
	ReasonCancelled  = "cancelled by user"
	ReasonSuperseded = "superseded by new lease"
)

const maxAcquireAttempts = 3

// CreateHook runs inside the acquiring transaction after the lease row is written.
type CreateHook func(ctx context.Context, tx store.Tx, l *models.Lease, r *models.PoolResource) error

type AcquireRequest struct {
	HolderId       string
	Duration       time.Duration
	ReuseThreshold time.Duration
	// Denomination restricts selection to one resource denomination. Empty means any.
	Denomination string
	OnCreate     CreateHook
}

type Acquisition struct {
	Lease    *models.Lease
	Resource *models.PoolResource
	Reused   bool
}

type Manager struct {
	store   store.Store
	pool    *pool.Pool
	metrics *metrics.PoolMetrics
	now     func() time.Time
}

func NewManager(st store.Store, p *pool.Pool, m *metrics.PoolMetrics) *Manager {
	return &Manager{store: st, pool: p, metrics: m, now: time.Now}
}

// WithClock replaces the time source of the manager and its pool, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.pool.WithClock(now)
	return m
}

func (m *Manager) Kind() models.ResourceKind {
	return m.pool.Kind()
}

// AcquireOrReuse returns the holder's current lease when it has more than ReuseThreshold
// left, otherwise ends it and leases a fresh resource. The original expiry of a reused
// lease is preserved. Fails with store.ErrResourceExhausted when nothing is available.
func (m *Manager) AcquireOrReuse(ctx context.Context, req AcquireRequest) (*Acquisition, error) {
	if req.HolderId == "" {
		return nil, fmt.Errorf("holder id cannot be empty")
	}
	if req.Duration <= 0 {
		return nil, fmt.Errorf("lease duration must be positive, got %v", req.Duration)
	}
	if req.ReuseThreshold < 0 || req.ReuseThreshold >= req.Duration {
		return nil, fmt.Errorf("reuse threshold %v must be within [0, %v)", req.ReuseThreshold, req.Duration)
	}

	var acq *Acquisition
	var err error
	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		acq, err = m.tryAcquire(ctx, req)
		if !errors.Is(err, store.ErrLeaseConflict) {
			break
		}
		// A concurrent request by the same holder won the race; the next attempt reuses its lease.
		zap.L().Debug("Lease conflict, retrying",
			zap.String("holder_id", req.HolderId),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		if errors.Is(err, store.ErrResourceExhausted) {
			m.metrics.Exhausted(string(m.Kind()))
		}
		return nil, err
	}

	if acq.Reused {
		m.metrics.LeaseReused(string(m.Kind()))
		if acq.Resource, err = m.store.GetResource(ctx, acq.Lease.ResourceId); err != nil {
			return nil, err
		}
		return acq, nil
	}

	m.metrics.LeaseAcquired(string(m.Kind()))
	zap.L().Info("Lease acquired",
		zap.String("lease_id", acq.Lease.Id),
		zap.String("kind", string(acq.Lease.Kind)),
		zap.String("holder_id", acq.Lease.HolderId),
		zap.String("resource_key", acq.Lease.ResourceKey),
		zap.Time("expires_at", acq.Lease.ExpiresAt))
	return acq, nil
}

func (m *Manager) tryAcquire(ctx context.Context, req AcquireRequest) (*Acquisition, error) {
	var acq *Acquisition
	var ended *models.Lease

	err := m.store.InTx(ctx, func(tx store.Tx) error {
		now := m.now()
		existing, err := tx.ActiveLeaseForHolder(ctx, m.Kind(), req.HolderId)
		if err != nil {
			return err
		}

		if existing != nil {
			sameDenomination := req.Denomination == "" || existing.Denomination == req.Denomination
			if sameDenomination && existing.Remaining(now) > req.ReuseThreshold {
				acq = &Acquisition{Lease: existing, Reused: true}
				return nil
			}
			if _, err := m.TerminateIn(ctx, tx, existing, models.LeaseOutcomeReleased, ReasonSuperseded); err != nil {
				return err
			}
			ended = existing
		}

		r, err := m.pool.SelectAvailable(ctx, tx, req.Denomination)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: %s", store.ErrResourceExhausted, m.Kind())
		}

		l := &models.Lease{
			Id:           uuid.New().String(),
			Kind:         m.Kind(),
			ResourceId:   r.Id,
			ResourceKey:  r.ResourceKey,
			Denomination: r.Denomination,
			HolderId:     req.HolderId,
			AssignedAt:   now,
			ExpiresAt:    now.Add(req.Duration),
			Active:       true,
		}
		if err := tx.InsertLease(ctx, l); err != nil {
			return err
		}
		if req.OnCreate != nil {
			if err := req.OnCreate(ctx, tx, l, r); err != nil {
				return err
			}
		}

		acq = &Acquisition{Lease: l, Resource: r}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ended != nil {
		m.metrics.LeaseEnded(string(ended.Kind), string(models.LeaseOutcomeReleased))
		zap.L().Info("Lease replaced near expiry",
			zap.String("lease_id", ended.Id),
			zap.String("holder_id", ended.HolderId))
	}
	return acq, nil
}

// TerminateIn ends an active lease inside tx, settles its pending orders and
// releases the resource. Reports false when the lease was already inactive.
func (m *Manager) TerminateIn(ctx context.Context, tx store.Tx, l *models.Lease, outcome models.LeaseOutcome, reason string) (bool, error) {
	if !outcome.Valid() {
		return false, fmt.Errorf("invalid lease outcome %q", outcome)
	}
	now := m.now()

	changed, err := tx.DeactivateLease(ctx, l.Id, outcome, now)
	if err != nil || !changed {
		return false, err
	}

	status := models.OrderStatusCancelled
	if outcome == models.LeaseOutcomeFulfilled {
		status, reason = models.OrderStatusCompleted, ""
	}
	if _, err := tx.SettlePendingOrders(ctx, l.Id, status, reason, now); err != nil {
		return false, err
	}

	if err := m.pool.ReleaseIn(ctx, tx, l.ResourceId); err != nil {
		return false, err
	}
	return true, nil
}

// Terminate ends a lease with outcome. Terminating an inactive lease is a no-op.
func (m *Manager) Terminate(ctx context.Context, leaseId string, outcome models.LeaseOutcome, reason string) error {
	return m.terminate(ctx, leaseId, outcome, reason, nil)
}

// terminate runs after inside the same transaction once the lease is deactivated;
// an error from it rolls the termination back.
func (m *Manager) terminate(ctx context.Context, leaseId string, outcome models.LeaseOutcome, reason string,
	after func(tx store.Tx, l *models.Lease) error) error {
	var l *models.Lease
	var changed bool
	err := m.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if l, err = tx.GetLease(ctx, leaseId); err != nil {
			return err
		}
		if changed, err = m.TerminateIn(ctx, tx, l, outcome, reason); err != nil || !changed {
			return err
		}
		if after != nil {
			return after(tx, l)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		m.metrics.LeaseEnded(string(l.Kind), string(outcome))
		zap.L().Info("Lease terminated",
			zap.String("lease_id", leaseId),
			zap.String("outcome", string(outcome)),
			zap.String("resource_key", l.ResourceKey))
	}
	return nil
}

// AnyHolder skips the holder check in Get. Only operator paths pass it.
const AnyHolder = ""

// Get returns a lease whose holder must be holderId, unless holderId is AnyHolder.
func (m *Manager) Get(ctx context.Context, leaseId, holderId string) (*models.Lease, error) {
	l, err := m.store.GetLease(ctx, leaseId)
	if err != nil {
		return nil, err
	}
	if l.Kind != m.Kind() {
		return nil, fmt.Errorf("%w: %s", store.ErrLeaseNotFound, leaseId)
	}
	if holderId != "" && l.HolderId != holderId {
		return nil, fmt.Errorf("%w: lease %s", store.ErrUnauthorized, leaseId)
	}
	return l, nil
}

// Cancel releases a lease on behalf of its holder. A lease with a recorded
// confirmation belongs to the reconciler and is refused with ErrSettlementPending.
func (m *Manager) Cancel(ctx context.Context, leaseId, holderId string) error {
	if _, err := m.Get(ctx, leaseId, holderId); err != nil {
		return err
	}
	return m.terminate(ctx, leaseId, models.LeaseOutcomeReleased, ReasonCancelled, func(tx store.Tx, l *models.Lease) error {
		pending, err := tx.HasConfirmation(ctx, l.Id)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: %s", store.ErrSettlementPending, l.Id)
		}
		return nil
	})
}

// History lists every lease taken on a resource, newest first.
func (m *Manager) History(ctx context.Context, resourceId string) ([]models.Lease, error) {
	return m.store.ListLeasesForResource(ctx, resourceId)
}

func (m *Manager) ListActive(ctx context.Context) ([]models.Lease, error) {
	return m.store.ListActiveLeases(ctx, m.Kind())
}

func (m *Manager) Now() time.Time {
	return m.now()
}
