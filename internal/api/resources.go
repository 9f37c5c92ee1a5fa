package api

import (
	"context"
	"errors"
	"fmt"

	"wallet-pool-go/internal/chainaddr"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"
)

// AddResourceRequest adds a wallet (Network + Address) or a claim (Claim) to a pool
type AddResourceRequest struct {
	Kind      models.ResourceKind  `json:"kind"`
	Network   string               `json:"network"`
	Address   string               `json:"address"`
	Claim     *models.ClaimDetails `json:"claim"`
	CreatedBy string               `json:"created_by"`
}

func (s *PoolService) ListResources(ctx context.Context, kind models.ResourceKind, state models.ResourceState) ([]models.PoolResource, error) {
	p, err := s.poolFor(kind)
	if err != nil {
		return nil, err
	}
	return p.List(ctx, state)
}

func (s *PoolService) AddResource(ctx context.Context, req AddResourceRequest) (*models.PoolResource, error) {
	p, err := s.poolFor(req.Kind)
	if err != nil {
		return nil, err
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}

	switch req.Kind {
	case models.ResourceKindWallet:
		if req.Address == "" {
			return nil, fmt.Errorf("%w: address is required", ErrInvalidRequest)
		}
		network := req.Network
		if network == "" {
			network = s.cfg.Network
		}
		r, err := p.AddWallet(ctx, network, req.Address, createdBy)
		return r, invalidIfValidation(err)
	default:
		if req.Claim == nil {
			return nil, fmt.Errorf("%w: claim details are required", ErrInvalidRequest)
		}
		r, err := p.AddClaim(ctx, *req.Claim, createdBy)
		return r, invalidIfValidation(err)
	}
}

// SetResourceEnabled disables or re-enables a resource of either kind.
func (s *PoolService) SetResourceEnabled(ctx context.Context, resourceId string, enabled bool) (*models.PoolResource, error) {
	r, err := s.store.GetResource(ctx, resourceId)
	if err != nil {
		return nil, err
	}
	p, err := s.poolFor(r.Kind)
	if err != nil {
		return nil, err
	}
	if enabled {
		return p.Enable(ctx, resourceId)
	}
	return p.Disable(ctx, resourceId)
}

// ListResourceLeases returns the assignment history of one resource, newest first.
func (s *PoolService) ListResourceLeases(ctx context.Context, resourceId string) ([]models.Lease, error) {
	r, err := s.store.GetResource(ctx, resourceId)
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case models.ResourceKindWallet:
		return s.wallets.History(ctx, r.Id)
	case models.ResourceKindClaim:
		return s.claims.History(ctx, r.Id)
	}
	return nil, fmt.Errorf("%w: unknown resource kind %q", ErrInvalidRequest, r.Kind)
}

func invalidIfValidation(err error) error {
	if errors.Is(err, chainaddr.ErrInvalidAddress) || errors.Is(err, pool.ErrInvalidResource) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return err
}
