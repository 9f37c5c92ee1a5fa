package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderSideBuy = "BUY"

// RequestClaim leases a pre-funded bank claim of exactly amount and opens a pending buy order against it.
func (s *PoolService) RequestClaim(ctx context.Context, userId string, amount decimal.Decimal) (*models.ClaimAssignment, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	var order *models.Order
	acq, err := s.claims.AcquireOrReuse(ctx, lease.AcquireRequest{
		HolderId:     userId,
		Duration:     s.cfg.ClaimDuration,
		Denomination: pool.Denomination(amount),
		OnCreate: func(ctx context.Context, tx store.Tx, l *models.Lease, r *models.PoolResource) error {
			order = &models.Order{
				Id:         uuid.New().String(),
				UserId:     userId,
				LeaseId:    l.Id,
				ResourceId: r.Id,
				Side:       orderSideBuy,
				FiatAmount: amount,
				Asset:      s.cfg.ClaimAsset,
				Status:     models.OrderStatusPending,
				CreatedAt:  l.AssignedAt,
				UpdatedAt:  l.AssignedAt,
			}
			return tx.InsertOrder(ctx, order)
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrResourceExhausted) {
			s.reportExhausted(ctx, models.ResourceKindClaim, userId)
		}
		return nil, err
	}

	if order == nil {
		if order, err = s.store.GetOrderByLease(ctx, acq.Lease.Id); err != nil {
			return nil, err
		}
	}
	if acq.Resource.Claim == nil {
		return nil, fmt.Errorf("%w: claim %s has no bank details", store.ErrInvariantViolation, acq.Resource.Id)
	}

	return &models.ClaimAssignment{
		Claim:     *acq.Resource.Claim,
		LeaseId:   acq.Lease.Id,
		OrderId:   order.Id,
		ExpiresAt: acq.Lease.ExpiresAt,
	}, nil
}

// CancelClaim releases a claim lease on behalf of its holder and cancels the pending order.
// Once an operator confirmation is recorded the claim can no longer be cancelled.
func (s *PoolService) CancelClaim(ctx context.Context, leaseId, userId string) error {
	if userId == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.claims.Cancel(ctx, leaseId, userId)
}

// ConfirmClaimRequest is an operator verdict on a claim lease
type ConfirmClaimRequest struct {
	Approved  bool            `json:"approved"`
	Amount    decimal.Decimal `json:"amount"`
	Asset     string          `json:"asset"`
	Reference string          `json:"reference"`
	Note      string          `json:"note"`
}

// ConfirmClaim records an operator confirmation. The claim reconciler settles it on its next sweep.
func (s *PoolService) ConfirmClaim(ctx context.Context, leaseId string, req ConfirmClaimRequest) (*models.Confirmation, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	if req.Approved && !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: approved confirmation needs a positive amount", ErrInvalidRequest)
	}

	l, err := s.claims.Get(ctx, leaseId, lease.AnyHolder)
	if err != nil {
		return nil, err
	}
	now := s.claims.Now()
	if !l.Active || now.After(l.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", store.ErrLeaseInactive, leaseId)
	}

	asset := req.Asset
	if asset == "" {
		asset = s.cfg.ClaimAsset
	}
	c := &models.Confirmation{
		LeaseId:     l.Id,
		ExternalRef: strings.TrimSpace(req.Reference),
		Amount:      req.Amount,
		Asset:       strings.ToUpper(asset),
		Approved:    req.Approved,
		Note:        req.Note,
		CreatedAt:   now,
	}
	if err := s.store.RecordConfirmation(ctx, c); err != nil {
		return nil, err
	}

	zap.L().Info("Claim confirmation recorded",
		zap.String("lease_id", l.Id),
		zap.String("reference", c.ExternalRef),
		zap.Bool("approved", c.Approved))
	return c, nil
}
