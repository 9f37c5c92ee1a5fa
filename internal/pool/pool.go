// Package pool manages the inventory of leasable resources of one kind.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-pool-go/internal/chainaddr"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidResource is returned for claim details that cannot be pooled.
var ErrInvalidResource = errors.New("invalid pool resource")

// Pool is the AddressPool for one resource kind. Selection and release run inside
// a caller's transaction so they compose with lease writes.
type Pool struct {
	store store.Store
	kind  models.ResourceKind
	now   func() time.Time
}

func New(st store.Store, kind models.ResourceKind) *Pool {
	return &Pool{store: st, kind: kind, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

func (p *Pool) Kind() models.ResourceKind {
	return p.kind
}

// SelectAvailable claims the least recently used AVAILABLE resource inside tx.
// It returns nil without error when the pool is exhausted.
func (p *Pool) SelectAvailable(ctx context.Context, tx store.Tx, denomination string) (*models.PoolResource, error) {
	r, err := tx.SelectAvailable(ctx, p.kind, denomination, p.now())
	if err != nil {
		return nil, err
	}
	if r == nil {
		zap.L().Debug("Pool exhausted",
			zap.String("kind", string(p.kind)),
			zap.String("denomination", denomination))
	}
	return r, nil
}

// ReleaseIn returns a resource to AVAILABLE inside tx. Releasing an AVAILABLE
// resource is a no-op.
func (p *Pool) ReleaseIn(ctx context.Context, tx store.Tx, resourceId string) error {
	released, err := tx.ReleaseResource(ctx, resourceId, p.now())
	if err != nil {
		return err
	}
	if released {
		zap.L().Debug("Resource released", zap.String("resource_id", resourceId))
	}
	return nil
}

// Release is ReleaseIn in a transaction of its own.
func (p *Pool) Release(ctx context.Context, resourceId string) error {
	return p.store.InTx(ctx, func(tx store.Tx) error {
		return p.ReleaseIn(ctx, tx, resourceId)
	})
}

func (p *Pool) Disable(ctx context.Context, resourceId string) (*models.PoolResource, error) {
	if err := p.checkKind(ctx, resourceId); err != nil {
		return nil, err
	}
	return p.store.SetResourceDisabled(ctx, resourceId, true, p.now())
}

func (p *Pool) Enable(ctx context.Context, resourceId string) (*models.PoolResource, error) {
	if err := p.checkKind(ctx, resourceId); err != nil {
		return nil, err
	}
	return p.store.SetResourceDisabled(ctx, resourceId, false, p.now())
}

func (p *Pool) checkKind(ctx context.Context, resourceId string) error {
	r, err := p.store.GetResource(ctx, resourceId)
	if err != nil {
		return err
	}
	if r.Kind != p.kind {
		return fmt.Errorf("%w: %s is a %s resource", store.ErrResourceNotFound, resourceId, r.Kind)
	}
	return nil
}

func (p *Pool) List(ctx context.Context, state models.ResourceState) ([]models.PoolResource, error) {
	return p.store.ListResources(ctx, p.kind, state)
}

// AddWallet validates address for network and adds it to a WALLET pool.
func (p *Pool) AddWallet(ctx context.Context, network, address, createdBy string) (*models.PoolResource, error) {
	if p.kind != models.ResourceKindWallet {
		return nil, fmt.Errorf("%w: pool of kind %s cannot hold wallets", ErrInvalidResource, p.kind)
	}
	key, err := chainaddr.Normalize(network, address)
	if err != nil {
		return nil, err
	}
	return p.store.AddResource(ctx, store.AddResourceParams{
		Kind:        models.ResourceKindWallet,
		ResourceKey: key,
		Network:     strings.ToLower(network),
		CreatedBy:   createdBy,
	}, p.now())
}

// AddClaim adds a pre-funded bank claim. Its amount becomes the selection denomination.
func (p *Pool) AddClaim(ctx context.Context, details models.ClaimDetails, createdBy string) (*models.PoolResource, error) {
	if p.kind != models.ResourceKindClaim {
		return nil, fmt.Errorf("%w: pool of kind %s cannot hold claims", ErrInvalidResource, p.kind)
	}
	if !details.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: claim amount must be positive, got %s", ErrInvalidResource, details.Amount)
	}
	if details.AccountNumber == "" || details.BankName == "" {
		return nil, fmt.Errorf("%w: claim requires bank name and account number", ErrInvalidResource)
	}

	key := fmt.Sprintf("%s:%s:%s", details.IfscCode, details.AccountNumber, Denomination(details.Amount))
	return p.store.AddResource(ctx, store.AddResourceParams{
		Kind:         models.ResourceKindClaim,
		ResourceKey:  key,
		Denomination: Denomination(details.Amount),
		CreatedBy:    createdBy,
		Claim:        &details,
	}, p.now())
}

// Denomination is the selection key of a claim amount. 1000, 1000.0 and 1000.00 share one key.
func Denomination(amount decimal.Decimal) string {
	return amount.String()
}
