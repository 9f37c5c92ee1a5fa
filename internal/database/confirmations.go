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
	"go.uber.org/zap"
)

// RecordConfirmation stores an operator decision on a claim lease. The lease row
// is locked first so a concurrent cancel either sees the confirmation or wins.
func (s *Service) RecordConfirmation(ctx context.Context, c *models.Confirmation) error {
	if c.Id == "" {
		c.Id = uuid.New().String()
	}
	if c.ExternalRef == "" {
		return fmt.Errorf("confirmation reference cannot be empty")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertConfirmation(ctx, c)
	})
	if err != nil {
		return err
	}

	zap.L().Info("Claim confirmation recorded",
		zap.String("lease_id", c.LeaseId),
		zap.String("external_ref", c.ExternalRef),
		zap.Bool("approved", c.Approved))
	return nil
}

func (t *txn) InsertConfirmation(ctx context.Context, c *models.Confirmation) error {
	var active bool
	var expires timeValue
	err := t.conn.queryRow(ctx, fmt.Sprintf(queryLockLease, t.dialect.forUpdate), c.LeaseId).Scan(&active, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrLeaseNotFound, c.LeaseId)
	}
	if err != nil {
		return fmt.Errorf("failed to lock lease: %w", err)
	}
	if !active || c.CreatedAt.After(expires.Time) {
		return fmt.Errorf("%w: %s", store.ErrLeaseInactive, c.LeaseId)
	}

	var note any
	if c.Note != "" {
		note = c.Note
	}
	_, err = t.conn.exec(ctx, queryInsertConfirmation, c.Id, c.LeaseId, c.ExternalRef, c.Amount.String(),
		c.Asset, c.Approved, note, utc(c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateConfirmation, c.ExternalRef)
		}
		return fmt.Errorf("failed to insert confirmation: %w", err)
	}
	return nil
}

func (t *txn) HasConfirmation(ctx context.Context, leaseId string) (bool, error) {
	var one int
	err := t.conn.queryRow(ctx, queryConfirmationExists, leaseId).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check confirmations: %w", err)
	}
	return true, nil
}

// FetchConfirmations returns decisions recorded for a lease at or after since.
func (s *Service) FetchConfirmations(ctx context.Context, leaseId string, since time.Time) ([]models.Confirmation, error) {
	rows, err := s.conn.query(ctx, queryListConfirmations, leaseId)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmations: %w", err)
	}
	defer closeRows(rows)

	var out []models.Confirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		if c.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating confirmations: %w", err)
	}
	return out, nil
}
