package pool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wallet-pool-go/internal/chainaddr"
	"wallet-pool-go/internal/database"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "pool.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestAddWallet_ValidatesAddress(t *testing.T) {
	p := New(newStore(t), models.ResourceKindWallet)
	ctx := context.Background()

	r, err := p.AddWallet(ctx, "TRON", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "admin")
	require.NoError(t, err)
	assert.Equal(t, "tron", r.Network)
	assert.Equal(t, models.ResourceStateAvailable, r.State)
	assert.Equal(t, int64(0), r.UsageCount)

	_, err = p.AddWallet(ctx, "tron", "not-a-tron-address", "admin")
	assert.True(t, errors.Is(err, chainaddr.ErrInvalidAddress))

	_, err = p.AddWallet(ctx, "tron", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "admin")
	assert.True(t, errors.Is(err, store.ErrDuplicateResource))

	_, err = New(newStore(t), models.ResourceKindClaim).AddWallet(ctx, "tron", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "admin")
	assert.Error(t, err)
}

func TestAddClaim(t *testing.T) {
	p := New(newStore(t), models.ResourceKindClaim)
	ctx := context.Background()

	r, err := p.AddClaim(ctx, models.ClaimDetails{
		BankName:      "Bank",
		AccountNumber: "123",
		IfscCode:      "BANK0001",
		AccountHolder: "Holder",
		Amount:        decimal.RequireFromString("1000.00"),
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "1000", r.Denomination)
	require.NotNil(t, r.Claim)
	assert.Equal(t, "Bank", r.Claim.BankName)

	_, err = p.AddClaim(ctx, models.ClaimDetails{BankName: "Bank", AccountNumber: "1", Amount: decimal.Zero}, "admin")
	assert.Error(t, err)
}

func TestSelectReleaseDisable(t *testing.T) {
	db := newStore(t)
	p := New(db, models.ResourceKindWallet)
	ctx := context.Background()

	w, err := p.AddWallet(ctx, "internal", "addr-1", "admin")
	require.NoError(t, err)

	var picked *models.PoolResource
	require.NoError(t, db.InTx(ctx, func(tx store.Tx) error {
		picked, err = p.SelectAvailable(ctx, tx, "")
		return err
	}))
	require.NotNil(t, picked)
	assert.Equal(t, w.Id, picked.Id)

	require.NoError(t, db.InTx(ctx, func(tx store.Tx) error {
		none, err := p.SelectAvailable(ctx, tx, "")
		assert.Nil(t, none)
		return err
	}))

	_, err = p.Disable(ctx, w.Id)
	assert.True(t, errors.Is(err, store.ErrResourceLeased))

	require.NoError(t, p.Release(ctx, w.Id))
	require.NoError(t, p.Release(ctx, w.Id), "release is idempotent")

	r, err := p.Disable(ctx, w.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateDisabled, r.State)

	disabled, err := p.List(ctx, models.ResourceStateDisabled)
	require.NoError(t, err)
	assert.Len(t, disabled, 1)

	r, err = p.Enable(ctx, w.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStateAvailable, r.State)

	_, err = New(db, models.ResourceKindClaim).Disable(ctx, w.Id)
	assert.True(t, errors.Is(err, store.ErrResourceNotFound), "claim pool cannot touch wallets")
}
