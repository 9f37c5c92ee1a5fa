package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-pool-go/internal/database"
	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/oracle"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/store"

	"github.com/google/uuid"
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

type recordingSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingSink) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.got {
		out = append(out, n.Title)
	}
	return out
}

type harness struct {
	db     *database.Service
	pool   *pool.Pool
	leases *lease.Manager
	clock  *fakeClock
	sink   *recordingSink
}

func newHarness(t *testing.T, kind models.ResourceKind) *harness {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "reconcile.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	clock := &fakeClock{t: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	p := pool.New(db, kind)
	m := lease.NewManager(db, p, nil).WithClock(clock.Now)
	return &harness{db: db, pool: p, leases: m, clock: clock, sink: &recordingSink{}}
}

func (h *harness) deposits(o oracle.ChainOracle, grace time.Duration) *Reconciler {
	return NewDepositReconciler(h.db, h.leases, o,
		models.PoolConfig{Asset: "USDT", MinConfirmations: 1},
		Config{LeaseTimeout: 5 * time.Second, GraceWindow: grace, Workers: 4},
		h.sink, nil)
}

func (h *harness) acquire(t *testing.T, holder string) *lease.Acquisition {
	t.Helper()
	acq, err := h.leases.AcquireOrReuse(context.Background(), lease.AcquireRequest{
		HolderId:       holder,
		Duration:       30 * time.Minute,
		ReuseThreshold: 2 * time.Minute,
	})
	require.NoError(t, err)
	return acq
}

func (h *harness) addWallets(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, err := h.pool.AddWallet(context.Background(), "internal", k, "test")
		require.NoError(t, err)
	}
}

func TestDepositScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A", "B")

	user1 := h.acquire(t, "user-1")
	user2 := h.acquire(t, "user-2")
	assert.NotEqual(t, user1.Resource.Id, user2.Resource.Id)

	_, err := h.leases.AcquireOrReuse(ctx, lease.AcquireRequest{HolderId: "user-3", Duration: 30 * time.Minute})
	require.ErrorIs(t, err, store.ErrResourceExhausted)

	chain := oracle.NewMemoryOracle()
	h.clock.Advance(5 * time.Minute)
	chain.SimulateTransfer(user1.Lease.ResourceKey, models.Transfer{
		ExternalRef:   "tx1",
		Amount:        decimal.NewFromInt(100),
		Confirmations: 2,
		Timestamp:     h.clock.Now(),
		Asset:         "USDT",
	})

	r := h.deposits(chain, 0)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Credited: 1}, res)

	credit, err := h.db.GetCreditForLease(ctx, user1.Lease.Id)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, "tx1", credit.ExternalRef)
	assert.Equal(t, "user-1", credit.CreditedTo)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(100)))

	balance, err := h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "got %s", balance)

	l, err := h.db.GetLease(ctx, user1.Lease.Id)
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, models.LeaseOutcomeFulfilled, l.Outcome)

	a, err := h.db.GetResource(ctx, user1.Resource.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateAvailable, a.State)
	assert.True(t, a.CumulativeCredited.Equal(decimal.NewFromInt(100)))

	// tx1 reported again on later sweeps, including to a new holder of A
	user3 := h.acquire(t, "user-3")
	assert.Equal(t, user1.Resource.Id, user3.Resource.Id)
	for i := 0; i < 3; i++ {
		res, err = r.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Credited)
	}

	balance, err = h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
	balance, err = h.db.GetUserBalance(ctx, "user-3", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	active, err := h.leases.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Contains(t, h.sink.titles(), "Deposit credited")
}

func TestWindowAttribution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	key := acq.Lease.ResourceKey

	// before assignment: the oracle filters it by since
	chain.SimulateDeposit(key, "early", "USDT", decimal.NewFromInt(5), acq.Lease.AssignedAt.Add(-time.Second))
	// after expiry: still returned by the oracle but outside the window
	chain.SimulateDeposit(key, "late", "USDT", decimal.NewFromInt(7), acq.Lease.ExpiresAt.Add(time.Second))

	r := h.deposits(chain, 0)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Credited)

	h.clock.Advance(31 * time.Minute)
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	exists, err := h.db.CreditExists(ctx, "late")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = h.db.CreditExists(ctx, "early")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVerificationOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	key := acq.Lease.ResourceKey
	at := acq.Lease.AssignedAt.Add(time.Minute)

	chain := oracle.NewMemoryOracle()
	chain.SimulateTransfer(key, models.Transfer{ExternalRef: "unconfirmed", Amount: decimal.NewFromInt(1), Confirmations: 0, Timestamp: at, Asset: "USDT"})
	chain.SimulateTransfer(key, models.Transfer{ExternalRef: "wrong-asset", Amount: decimal.NewFromInt(2), Confirmations: 5, Timestamp: at.Add(time.Second), Asset: "TRX"})
	chain.SimulateTransfer(key, models.Transfer{ExternalRef: "zero", Amount: decimal.Zero, Confirmations: 5, Timestamp: at.Add(2 * time.Second), Asset: "USDT"})
	chain.SimulateTransfer(key, models.Transfer{ExternalRef: "good", Amount: decimal.NewFromInt(3), Confirmations: 5, Timestamp: at.Add(3 * time.Second), Asset: "usdt"})
	chain.SimulateTransfer(key, models.Transfer{ExternalRef: "second", Amount: decimal.NewFromInt(4), Confirmations: 5, Timestamp: at.Add(4 * time.Second), Asset: "USDT"})

	res, err := h.deposits(chain, 0).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)

	credit, err := h.db.GetCreditForLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, "good", credit.ExternalRef)
	assert.Equal(t, "USDT", credit.Asset)

	balance, err := h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(3)), "only the first accepted transfer is credited")
}

func TestDuplicateRefFallsThroughToNextCandidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A", "B")

	first := h.acquire(t, "user-1")
	second := h.acquire(t, "user-2")
	chain := oracle.NewMemoryOracle()
	at := h.clock.Now().Add(time.Minute)

	// the same reference shows up on both addresses; only the first credit sticks
	chain.SimulateDeposit(first.Lease.ResourceKey, "shared", "USDT", decimal.NewFromInt(10), at)

	r := h.deposits(chain, 0)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)

	chain.SimulateDeposit(second.Lease.ResourceKey, "shared", "USDT", decimal.NewFromInt(10), at)
	chain.SimulateDeposit(second.Lease.ResourceKey, "own", "USDT", decimal.NewFromInt(20), at.Add(time.Second))
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)

	b1, err := h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	b2, err := h.db.GetUserBalance(ctx, "user-2", "USDT")
	require.NoError(t, err)
	assert.True(t, b1.Equal(decimal.NewFromInt(10)), "got %s", b1)
	assert.True(t, b2.Equal(decimal.NewFromInt(20)), "got %s", b2)

	active, err := h.leases.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExpiryReleasesResource(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	r := h.deposits(chain, 0)

	h.clock.Advance(29 * time.Minute)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Equal(t, 1, chain.Calls(acq.Lease.ResourceKey))

	h.clock.Advance(2 * time.Minute)
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 3, chain.Calls(acq.Lease.ResourceKey), "expiry performs one extra check")

	l, err := h.db.GetLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseOutcomeExpired, l.Outcome)

	next := h.acquire(t, "user-2")
	assert.Equal(t, acq.Resource.Id, next.Resource.Id)
	assert.Contains(t, h.sink.titles(), "Lease expired")
}

func TestOracleErrorNeverExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	chain.SimulateOutage(acq.Lease.ResourceKey, oracle.ErrTransient)
	r := h.deposits(chain, 0)

	h.clock.Advance(time.Hour)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 1, Failed: 1}, res)

	l, err := h.db.GetLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.True(t, l.Active)

	// the outage clears and the late-found transfer still lands in the window
	chain.SimulateOutage(acq.Lease.ResourceKey, nil)
	chain.SimulateDeposit(acq.Lease.ResourceKey, "tx-late-seen", "USDT", decimal.NewFromInt(9), acq.Lease.ExpiresAt)
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)
}

type flakyOracle struct {
	mu    sync.Mutex
	calls int
	inner *oracle.MemoryOracle
}

// FetchTransfers fails on the second call, which is the final check of an expired lease.
func (f *flakyOracle) FetchTransfers(ctx context.Context, key string, since time.Time) ([]models.Transfer, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 2 {
		return nil, errors.New("connection reset")
	}
	return f.inner.FetchTransfers(ctx, key, since)
}

func TestGraceCheckErrorKeepsLease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	o := &flakyOracle{inner: oracle.NewMemoryOracle()}
	r := h.deposits(o, 0)

	h.clock.Advance(31 * time.Minute)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	l, err := h.db.GetLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.True(t, l.Active)

	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
}

func TestGraceWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	r := h.deposits(chain, 5*time.Minute)

	h.clock.Advance(32 * time.Minute)
	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired, "still inside grace")

	// indexed late but timestamped at expiry
	chain.SimulateDeposit(acq.Lease.ResourceKey, "at-expiry", "USDT", decimal.NewFromInt(50), acq.Lease.ExpiresAt)
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)

	balance, err := h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(50)))
}

func TestAcceptPredicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	chain.SimulateDeposit(acq.Lease.ResourceKey, "small", "USDT", decimal.NewFromInt(1), h.clock.Now())

	r := New(h.db, h.leases, Policy{
		Name:            "minimum",
		Asset:           "USDT",
		TransactionType: TransactionTypeDeposit,
		Source:          ChainSource{Oracle: chain},
		Accept: func(_ *models.Lease, c Candidate) (bool, string) {
			return c.Amount.GreaterThanOrEqual(decimal.NewFromInt(10)), "below_minimum"
		},
		ExpiryReason: lease.ReasonExpired,
		Noun:         "Deposit",
	}, Config{}, nil, nil)

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Credited)
}

func TestClaimReconciler(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindClaim)
	for _, acct := range []string{"1001", "1002", "1003"} {
		_, err := h.pool.AddClaim(ctx, models.ClaimDetails{
			BankName:      "HDFC",
			AccountNumber: acct,
			IfscCode:      "HDFC0000001",
			AccountHolder: "Pool Ltd",
			Amount:        decimal.NewFromInt(5000),
		}, "test")
		require.NoError(t, err)
	}

	withOrder := func(holder string) *lease.Acquisition {
		acq, err := h.leases.AcquireOrReuse(ctx, lease.AcquireRequest{
			HolderId:     holder,
			Duration:     15 * time.Minute,
			Denomination: pool.Denomination(decimal.NewFromInt(5000)),
			OnCreate: func(ctx context.Context, tx store.Tx, l *models.Lease, r *models.PoolResource) error {
				return tx.InsertOrder(ctx, &models.Order{
					Id:         uuid.New().String(),
					UserId:     holder,
					LeaseId:    l.Id,
					ResourceId: r.Id,
					Side:       "BUY",
					FiatAmount: r.Claim.Amount,
					Asset:      "USDT",
					Status:     models.OrderStatusPending,
					CreatedAt:  l.AssignedAt,
					UpdatedAt:  l.AssignedAt,
				})
			},
		})
		require.NoError(t, err)
		return acq
	}

	approved := withOrder("buyer-1")
	rejected := withOrder("buyer-2")
	expired := withOrder("buyer-3")

	h.clock.Advance(time.Minute)
	require.NoError(t, h.db.RecordConfirmation(ctx, &models.Confirmation{
		LeaseId: approved.Lease.Id, ExternalRef: "utr-1", Amount: decimal.RequireFromString("58.25"),
		Asset: "USDT", Approved: true, CreatedAt: h.clock.Now(),
	}))
	require.NoError(t, h.db.RecordConfirmation(ctx, &models.Confirmation{
		LeaseId: rejected.Lease.Id, ExternalRef: "utr-2", Amount: decimal.NewFromInt(1),
		Asset: "USDT", Approved: false, Note: "payment not received", CreatedAt: h.clock.Now(),
	}))

	r := NewClaimReconciler(h.db, h.leases, models.PoolConfig{ClaimAsset: "USDT"},
		Config{LeaseTimeout: 5 * time.Second}, h.sink, nil)

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 3, Credited: 1, Released: 1}, res)

	order, err := h.db.GetOrderByLease(ctx, approved.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	balance, err := h.db.GetUserBalance(ctx, "buyer-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("58.25")))

	order, err = h.db.GetOrderByLease(ctx, rejected.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, lease.ReasonRejected, order.Reason)
	l, err := h.db.GetLease(ctx, rejected.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseOutcomeReleased, l.Outcome)

	h.clock.Advance(15 * time.Minute)
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	order, err = h.db.GetOrderByLease(ctx, expired.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "resource expired", order.Reason)

	available, err := h.pool.List(ctx, models.ResourceStateAvailable)
	require.NoError(t, err)
	assert.Len(t, available, 3)
}

// hangingOracle never answers for one address until the caller gives up.
type hangingOracle struct {
	key   string
	inner *oracle.MemoryOracle
}

func (o *hangingOracle) FetchTransfers(ctx context.Context, key string, since time.Time) ([]models.Transfer, error) {
	if key == o.key {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return o.inner.FetchTransfers(ctx, key, since)
}

func TestLeaseTimeoutBoundsSlowSource(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A", "B")

	stuck := h.acquire(t, "user-1")
	paid := h.acquire(t, "user-2")

	chain := oracle.NewMemoryOracle()
	h.clock.Advance(time.Minute)
	chain.SimulateDeposit(paid.Lease.ResourceKey, "tx-b", "USDT", decimal.NewFromInt(100), h.clock.Now())

	r := NewDepositReconciler(h.db, h.leases, &hangingOracle{key: stuck.Lease.ResourceKey, inner: chain},
		models.PoolConfig{Asset: "USDT", MinConfirmations: 1},
		Config{LeaseTimeout: 200 * time.Millisecond, Workers: 1},
		h.sink, nil)

	start := time.Now()
	res, err := r.Sweep(ctx)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Credited: 1, Failed: 1}, res)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second, "a hung lookup must not stall the sweep")

	l, err := h.db.GetLease(ctx, stuck.Lease.Id)
	require.NoError(t, err)
	assert.True(t, l.Active)
}

func TestConcurrentSweepsSettleOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A")

	acq := h.acquire(t, "user-1")
	chain := oracle.NewMemoryOracle()
	h.clock.Advance(time.Minute)
	chain.SimulateDeposit(acq.Lease.ResourceKey, "tx-1", "USDT", decimal.NewFromInt(100), h.clock.Now())
	r := h.deposits(chain, 0)

	const sweeps = 4
	var wg sync.WaitGroup
	results := make(chan SweepResult, sweeps)
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Sweep(ctx)
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	credited := 0
	for res := range results {
		credited += res.Credited
	}
	assert.Equal(t, 1, credited)

	balance, err := h.db.GetUserBalance(ctx, "user-1", "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "balance %s", balance)

	credit, err := h.db.GetCreditForLease(ctx, acq.Lease.Id)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", credit.ExternalRef)

	r2, err := h.db.GetResource(ctx, acq.Resource.Id)
	require.NoError(t, err)
	assert.True(t, r2.CumulativeCredited.Equal(decimal.NewFromInt(100)), "credited %s", r2.CumulativeCredited)
}
