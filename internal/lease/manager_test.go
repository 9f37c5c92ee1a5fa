package lease

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-pool-go/internal/database"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setup(t *testing.T, kind models.ResourceKind) (*database.Service, *pool.Pool, *Manager, *fakeClock) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "lease.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	p := pool.New(db, kind)
	m := NewManager(db, p, nil).WithClock(clock.Now)
	return db, p, m, clock
}

func addWallets(t *testing.T, p *pool.Pool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := p.AddWallet(context.Background(), "internal", fmt.Sprintf("addr-%02d", i), "test")
		require.NoError(t, err)
	}
}

func walletRequest(holder string) AcquireRequest {
	return AcquireRequest{HolderId: holder, Duration: 30 * time.Minute, ReuseThreshold: 2 * time.Minute}
}

func TestAcquireOrReuse_MutualExclusion(t *testing.T) {
	_, p, m, _ := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 10)

	const callers = 25
	var wg sync.WaitGroup
	results := make(chan *Acquisition, callers)
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acq, err := m.AcquireOrReuse(context.Background(), walletRequest(fmt.Sprintf("user-%d", i)))
			if err != nil {
				errs <- err
				return
			}
			results <- acq
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	seen := make(map[string]string)
	for acq := range results {
		if holder, dup := seen[acq.Resource.Id]; dup {
			t.Fatalf("resource %s leased to both %s and %s", acq.Resource.Id, holder, acq.Lease.HolderId)
		}
		seen[acq.Resource.Id] = acq.Lease.HolderId
	}
	assert.Len(t, seen, 10)

	exhausted := 0
	for err := range errs {
		require.True(t, errors.Is(err, store.ErrResourceExhausted), "unexpected error: %v", err)
		exhausted++
	}
	assert.Equal(t, callers-10, exhausted)
}

func TestAcquireOrReuse_ReuseWindow(t *testing.T) {
	_, p, m, clock := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 2)
	ctx := context.Background()

	first, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, clock.Now().Add(30*time.Minute), first.Lease.ExpiresAt)

	clock.Advance(time.Minute)
	again, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, first.Lease.Id, again.Lease.Id)
	assert.Equal(t, first.Lease.ExpiresAt, again.Lease.ExpiresAt, "reuse keeps the original expiry")
	require.NotNil(t, again.Resource)
	assert.Equal(t, first.Resource.Id, again.Resource.Id)

	// 1m30s left, under the 2m threshold
	clock.Advance(27*time.Minute + 30*time.Second)
	fresh, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)
	assert.False(t, fresh.Reused)
	assert.NotEqual(t, first.Lease.Id, fresh.Lease.Id)
	assert.NotEqual(t, first.Resource.Id, fresh.Resource.Id, "LRU picks the resource not just released")

	old, err := m.Get(ctx, first.Lease.Id, "user-1")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Equal(t, models.LeaseOutcomeReleased, old.Outcome)
}

func TestAcquireOrReuse_ReplacementCanReuseSameResource(t *testing.T) {
	_, p, m, clock := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	first, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	fresh, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Lease.Id, fresh.Lease.Id)
	assert.Equal(t, first.Resource.Id, fresh.Resource.Id)
}

func TestAcquireOrReuse_Exhaustion(t *testing.T) {
	_, p, m, _ := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	_, err := m.AcquireOrReuse(ctx, walletRequest("user-a"))
	require.NoError(t, err)

	_, err = m.AcquireOrReuse(ctx, walletRequest("user-b"))
	assert.True(t, errors.Is(err, store.ErrResourceExhausted))
}

func TestAcquireOrReuse_Validation(t *testing.T) {
	_, _, m, _ := setup(t, models.ResourceKindWallet)
	ctx := context.Background()

	_, err := m.AcquireOrReuse(ctx, AcquireRequest{Duration: time.Minute})
	assert.Error(t, err)
	_, err = m.AcquireOrReuse(ctx, AcquireRequest{HolderId: "u", Duration: time.Minute, ReuseThreshold: time.Minute})
	assert.Error(t, err)
}

func TestTerminate_IdempotentAndReleases(t *testing.T) {
	db, p, m, _ := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	acq, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)

	require.NoError(t, m.Terminate(ctx, acq.Lease.Id, models.LeaseOutcomeExpired, ReasonExpired))
	require.NoError(t, m.Terminate(ctx, acq.Lease.Id, models.LeaseOutcomeFulfilled, ""))

	l, err := db.GetLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseOutcomeExpired, l.Outcome, "second terminate must not overwrite the outcome")

	r, err := db.GetResource(ctx, acq.Resource.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateAvailable, r.State)

	// freed resource is selectable again
	_, err = m.AcquireOrReuse(ctx, walletRequest("user-2"))
	require.NoError(t, err)

	assert.True(t, errors.Is(m.Terminate(ctx, "missing", models.LeaseOutcomeExpired, ""), store.ErrLeaseNotFound))
}

func TestGet_Unauthorized(t *testing.T) {
	_, p, m, _ := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	acq, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)

	_, err = m.Get(ctx, acq.Lease.Id, "user-2")
	assert.True(t, errors.Is(err, store.ErrUnauthorized))
	assert.True(t, errors.Is(m.Cancel(ctx, acq.Lease.Id, "user-2"), store.ErrUnauthorized))

	require.NoError(t, m.Cancel(ctx, acq.Lease.Id, "user-1"))
	l, err := m.Get(ctx, acq.Lease.Id, AnyHolder)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseOutcomeReleased, l.Outcome)
}

func TestAcquireOrReuse_ClaimDenominationAndHook(t *testing.T) {
	db, p, m, _ := setup(t, models.ResourceKindClaim)
	ctx := context.Background()

	for _, amount := range []int64{500, 1000} {
		_, err := p.AddClaim(ctx, models.ClaimDetails{
			BankName:      "Bank",
			AccountNumber: fmt.Sprintf("ACC%d", amount),
			IfscCode:      "BANK0001",
			AccountHolder: "Holder",
			Amount:        decimal.NewFromInt(amount),
		}, "admin")
		require.NoError(t, err)
	}

	hookCalls := 0
	req := AcquireRequest{
		HolderId:       "buyer",
		Duration:       15 * time.Minute,
		ReuseThreshold: time.Minute,
		Denomination:   pool.Denomination(decimal.RequireFromString("1000.00")),
		OnCreate: func(ctx context.Context, tx store.Tx, l *models.Lease, r *models.PoolResource) error {
			hookCalls++
			return tx.InsertOrder(ctx, &models.Order{
				Id: "order-" + l.Id, UserId: l.HolderId, LeaseId: l.Id, ResourceId: r.Id,
				Side: "BUY", FiatAmount: r.Claim.Amount, Asset: "USDT",
				Status: models.OrderStatusPending, CreatedAt: l.AssignedAt,
			})
		},
	}

	first, err := m.AcquireOrReuse(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.Resource.Claim)
	assert.True(t, first.Resource.Claim.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 1, hookCalls)

	// different amount replaces the claim and cancels its order
	req.Denomination = "500"
	second, err := m.AcquireOrReuse(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.Equal(t, 2, hookCalls)

	order, err := db.GetOrderByLease(ctx, first.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, ReasonSuperseded, order.Reason)
}

func TestCancel_RefusedOnceConfirmed(t *testing.T) {
	db, p, m, clock := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	acq, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)

	require.NoError(t, db.RecordConfirmation(ctx, &models.Confirmation{
		LeaseId:     acq.Lease.Id,
		ExternalRef: "utr-1",
		Amount:      decimal.NewFromInt(100),
		Asset:       "USDT",
		Approved:    true,
		CreatedAt:   clock.Now(),
	}))

	err = m.Cancel(ctx, acq.Lease.Id, "user-1")
	assert.True(t, errors.Is(err, store.ErrSettlementPending), "got %v", err)

	// the rolled back cancel leaves lease and resource untouched
	l, err := m.Get(ctx, acq.Lease.Id, "user-1")
	require.NoError(t, err)
	assert.True(t, l.Active)
	r, err := db.GetResource(ctx, acq.Resource.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateLeased, r.State)

	// operator termination still goes through
	require.NoError(t, m.Terminate(ctx, acq.Lease.Id, models.LeaseOutcomeFulfilled, ""))
}

func TestRecordConfirmation_RequiresLiveLease(t *testing.T) {
	db, p, m, clock := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	acq, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)

	late := &models.Confirmation{
		LeaseId:     acq.Lease.Id,
		ExternalRef: "utr-late",
		Amount:      decimal.NewFromInt(100),
		Asset:       "USDT",
		Approved:    true,
		CreatedAt:   acq.Lease.ExpiresAt.Add(time.Second),
	}
	assert.True(t, errors.Is(db.RecordConfirmation(ctx, late), store.ErrLeaseInactive))

	require.NoError(t, m.Cancel(ctx, acq.Lease.Id, "user-1"))
	ended := &models.Confirmation{
		LeaseId:     acq.Lease.Id,
		ExternalRef: "utr-ended",
		Amount:      decimal.NewFromInt(100),
		Asset:       "USDT",
		Approved:    true,
		CreatedAt:   clock.Now(),
	}
	assert.True(t, errors.Is(db.RecordConfirmation(ctx, ended), store.ErrLeaseInactive))

	missing := *ended
	missing.Id, missing.LeaseId, missing.ExternalRef = "", "no-such-lease", "utr-missing"
	assert.True(t, errors.Is(db.RecordConfirmation(ctx, &missing), store.ErrLeaseNotFound))
}

func TestHistory(t *testing.T) {
	_, p, m, clock := setup(t, models.ResourceKindWallet)
	addWallets(t, p, 1)
	ctx := context.Background()

	first, err := m.AcquireOrReuse(ctx, walletRequest("user-1"))
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, first.Lease.Id, "user-1"))

	clock.Advance(time.Minute)
	second, err := m.AcquireOrReuse(ctx, walletRequest("user-2"))
	require.NoError(t, err)
	require.Equal(t, first.Resource.Id, second.Resource.Id)

	leases, err := m.History(ctx, first.Resource.Id)
	require.NoError(t, err)
	require.Len(t, leases, 2)
	assert.Equal(t, second.Lease.Id, leases[0].Id)
	assert.True(t, leases[0].Active)
	assert.Equal(t, first.Lease.Id, leases[1].Id)
	assert.Equal(t, models.LeaseOutcomeReleased, leases[1].Outcome)

	none, err := m.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
