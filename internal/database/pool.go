package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) AddResource(ctx context.Context, params store.AddResourceParams, now time.Time) (*models.PoolResource, error) {
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("invalid resource kind %q", params.Kind)
	}
	if params.ResourceKey == "" {
		return nil, fmt.Errorf("resource key cannot be empty")
	}
	if params.Kind == models.ResourceKindClaim && params.Claim == nil {
		return nil, fmt.Errorf("claim resource requires bank details")
	}

	id := uuid.New().String()
	now = utc(now)

	err := s.InTx(ctx, func(tx store.Tx) error {
		c := tx.(*txn).conn
		_, err := c.exec(ctx, queryInsertResource,
			id, string(params.Kind), params.ResourceKey, params.Network, params.Denomination,
			neverUsed, params.CreatedBy, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s %s", store.ErrDuplicateResource, params.Kind, params.ResourceKey)
			}
			return fmt.Errorf("failed to insert resource: %w", err)
		}

		if params.Claim != nil {
			_, err = c.exec(ctx, queryInsertClaimDetails, id, params.Claim.BankName, params.Claim.AccountNumber,
				params.Claim.IfscCode, params.Claim.AccountHolder, params.Claim.Amount.String())
			if err != nil {
				return fmt.Errorf("failed to insert claim details: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Pool resource added",
		zap.String("resource_id", id),
		zap.String("kind", string(params.Kind)),
		zap.String("resource_key", params.ResourceKey),
		zap.String("network", params.Network))

	return s.GetResource(ctx, id)
}

func (s *Service) GetResource(ctx context.Context, resourceId string) (*models.PoolResource, error) {
	return getResource(ctx, s.conn, resourceId)
}

func getResource(ctx context.Context, c conn, resourceId string) (*models.PoolResource, error) {
	r, err := scanResource(c.queryRow(ctx, queryGetResource, resourceId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrResourceNotFound, resourceId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	if r.Kind == models.ResourceKindClaim {
		if r.Claim, err = getClaimDetails(ctx, c, r.Id); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func getClaimDetails(ctx context.Context, c conn, resourceId string) (*models.ClaimDetails, error) {
	var d models.ClaimDetails
	err := c.queryRow(ctx, queryGetClaimDetails, resourceId).
		Scan(&d.BankName, &d.AccountNumber, &d.IfscCode, &d.AccountHolder, &d.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim details: %w", err)
	}
	return &d, nil
}

func (s *Service) ListResources(ctx context.Context, kind models.ResourceKind, state models.ResourceState) ([]models.PoolResource, error) {
	rows, err := s.conn.query(ctx, queryListResources, string(kind), string(kind), string(state), string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	resources, err := collectResources(rows)
	if err != nil {
		return nil, err
	}

	for i := range resources {
		if resources[i].Kind != models.ResourceKindClaim {
			continue
		}
		if resources[i].Claim, err = getClaimDetails(ctx, s.conn, resources[i].Id); err != nil {
			return nil, err
		}
	}
	return resources, nil
}

// collectResources drains and closes rows before the caller issues further queries.
func collectResources(rows *sql.Rows) ([]models.PoolResource, error) {
	defer closeRows(rows)

	var resources []models.PoolResource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return resources, nil
}

// SetResourceDisabled disables an AVAILABLE resource or re-enables a DISABLED one.
// Repeating a call is a no-op. Disabling a LEASED resource fails with ErrResourceLeased.
func (s *Service) SetResourceDisabled(ctx context.Context, resourceId string, disabled bool, now time.Time) (*models.PoolResource, error) {
	query := queryEnableResource
	if disabled {
		query = queryDisableResource
	}

	result, err := s.conn.exec(ctx, query, utc(now), resourceId)
	if err != nil {
		return nil, fmt.Errorf("failed to update resource state: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	r, err := s.GetResource(ctx, resourceId)
	if err != nil {
		return nil, err
	}
	if changed == 0 && disabled && r.State == models.ResourceStateLeased {
		return r, fmt.Errorf("%w: %s", store.ErrResourceLeased, resourceId)
	}
	if changed > 0 {
		zap.L().Info("Pool resource state changed",
			zap.String("resource_id", resourceId),
			zap.String("state", string(r.State)))
	}
	return r, nil
}

func (s *Service) FindOrphanedResources(ctx context.Context, before time.Time) ([]models.PoolResource, error) {
	rows, err := s.conn.query(ctx, queryListOrphanedResources)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned resources: %w", err)
	}
	resources, err := collectResources(rows)
	if err != nil {
		return nil, err
	}

	orphans := resources[:0]
	for _, r := range resources {
		if r.UpdatedAt.Before(before) {
			orphans = append(orphans, r)
		}
	}
	return orphans, nil
}

// Tx operations

func (t *txn) SelectAvailable(ctx context.Context, kind models.ResourceKind, denomination string, now time.Time) (*models.PoolResource, error) {
	now = utc(now)
	query := fmt.Sprintf(querySelectAvailableTemplate, t.dialect.skipLocked)

	r, err := scanResource(t.conn.queryRow(ctx, query, now, now, string(kind), denomination, denomination))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select available resource: %w", err)
	}

	if r.Kind == models.ResourceKindClaim {
		if r.Claim, err = getClaimDetails(ctx, t.conn, r.Id); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (t *txn) ReleaseResource(ctx context.Context, resourceId string, now time.Time) (bool, error) {
	now = utc(now)
	result, err := t.conn.exec(ctx, queryReleaseResource, now, now, resourceId, resourceId)
	if err != nil {
		return false, fmt.Errorf("failed to release resource: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *txn) AddCreditedAmount(ctx context.Context, resourceId string, amount decimal.Decimal, now time.Time) error {
	var current decimal.Decimal
	err := t.conn.queryRow(ctx, fmt.Sprintf(queryGetCreditedAmount, t.dialect.forUpdate), resourceId).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrResourceNotFound, resourceId)
	}
	if err != nil {
		return fmt.Errorf("failed to read credited amount: %w", err)
	}

	_, err = t.conn.exec(ctx, queryUpdateCreditedAmount, current.Add(amount).String(), utc(now), resourceId)
	if err != nil {
		return fmt.Errorf("failed to update credited amount: %w", err)
	}
	return nil
}
