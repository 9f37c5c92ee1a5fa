package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_SkipsOverlappingTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	l := NewLoop("test", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	}, nil)

	done := make(chan bool)
	go func() { done <- l.Tick(context.Background()) }()
	<-entered

	assert.False(t, l.Tick(context.Background()), "tick while running is skipped")

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), runs.Load())

	go func() { <-entered }()
	assert.True(t, l.Tick(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
}

func TestLoop_StartStop(t *testing.T) {
	var runs atomic.Int32
	l := NewLoop("test", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	l.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no sweeps after Stop")
}

func TestHealer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, models.ResourceKindWallet)
	h.addWallets(t, "A", "B")

	// B is held by a real lease and must be left alone
	held := h.acquire(t, "user-1")

	// A is claimed without a lease row
	var orphan *models.PoolResource
	require.NoError(t, h.db.InTx(ctx, func(tx store.Tx) error {
		var err error
		orphan, err = h.pool.SelectAvailable(ctx, tx, "")
		return err
	}))
	require.NotNil(t, orphan)
	assert.NotEqual(t, held.Resource.Id, orphan.Id)

	healer := NewHealer(h.db, 2*time.Minute, h.sink, nil).WithClock(h.clock.Now)

	healed, err := healer.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, healed, "inside the orphan grace")

	h.clock.Advance(5 * time.Minute)
	healed, err = healer.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, healed, 1)
	assert.Equal(t, orphan.Id, healed[0].Id)

	r, err := h.db.GetResource(ctx, orphan.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateAvailable, r.State)

	r, err = h.db.GetResource(ctx, held.Resource.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateLeased, r.State)

	assert.Contains(t, h.sink.titles(), "Orphaned resource released")
}
