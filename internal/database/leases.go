package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"
)

func getLease(ctx context.Context, c conn, leaseId string) (*models.Lease, error) {
	l, err := scanLease(c.queryRow(ctx, queryGetLease, leaseId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrLeaseNotFound, leaseId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return l, nil
}

func (s *Service) GetLease(ctx context.Context, leaseId string) (*models.Lease, error) {
	return getLease(ctx, s.conn, leaseId)
}

func (s *Service) ListActiveLeases(ctx context.Context, kind models.ResourceKind) ([]models.Lease, error) {
	rows, err := s.conn.query(ctx, queryListActiveLeases, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list active leases: %w", err)
	}
	defer closeRows(rows)

	var leases []models.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		leases = append(leases, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leases: %w", err)
	}
	return leases, nil
}

func (s *Service) ListLeasesForResource(ctx context.Context, resourceId string) ([]models.Lease, error) {
	rows, err := s.conn.query(ctx, queryListLeasesForResource, resourceId)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases for resource: %w", err)
	}
	defer closeRows(rows)

	var leases []models.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		leases = append(leases, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leases: %w", err)
	}
	return leases, nil
}

// Tx operations

func (t *txn) InsertLease(ctx context.Context, lease *models.Lease) error {
	_, err := t.conn.exec(ctx, queryInsertLease, lease.Id, string(lease.Kind), lease.ResourceId, lease.HolderId,
		utc(lease.AssignedAt), utc(lease.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: holder %s", store.ErrLeaseConflict, lease.HolderId)
		}
		return fmt.Errorf("failed to insert lease: %w", err)
	}
	return nil
}

func (t *txn) GetLease(ctx context.Context, leaseId string) (*models.Lease, error) {
	return getLease(ctx, t.conn, leaseId)
}

func (t *txn) ActiveLeaseForHolder(ctx context.Context, kind models.ResourceKind, holderId string) (*models.Lease, error) {
	l, err := scanLease(t.conn.queryRow(ctx, queryGetActiveLeaseForHolder, string(kind), holderId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active lease: %w", err)
	}
	return l, nil
}

func (t *txn) DeactivateLease(ctx context.Context, leaseId string, outcome models.LeaseOutcome, now time.Time) (bool, error) {
	result, err := t.conn.exec(ctx, queryDeactivateLease, string(outcome), utc(now), leaseId)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate lease: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}
