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

func creditExists(ctx context.Context, c conn, externalRef string) (bool, error) {
	var existingId string
	err := c.queryRow(ctx, queryCheckDuplicateCredit, externalRef).Scan(&existingId)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate credit: %w", err)
	}
	return true, nil
}

func (s *Service) CreditExists(ctx context.Context, externalRef string) (bool, error) {
	return creditExists(ctx, s.conn, externalRef)
}

func (s *Service) GetCreditForLease(ctx context.Context, leaseId string) (*models.CreditEvent, error) {
	c, err := scanCredit(s.conn.queryRow(ctx, queryGetCreditForLease, leaseId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credit for lease: %w", err)
	}
	return c, nil
}

func (s *Service) ListUnmirroredCredits(ctx context.Context, limit int) ([]models.CreditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.query(ctx, queryListUnmirroredCredits, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmirrored credits: %w", err)
	}
	defer closeRows(rows)

	var credits []models.CreditEvent
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		credits = append(credits, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credits: %w", err)
	}
	return credits, nil
}

func (s *Service) MarkCreditMirrored(ctx context.Context, creditId string, at time.Time) error {
	if _, err := s.conn.exec(ctx, queryMarkCreditMirrored, utc(at), creditId); err != nil {
		return fmt.Errorf("failed to mark credit mirrored: %w", err)
	}
	return nil
}

// Tx operations

func (t *txn) CreditExists(ctx context.Context, externalRef string) (bool, error) {
	return creditExists(ctx, t.conn, externalRef)
}

func (t *txn) InsertCreditEvent(ctx context.Context, event *models.CreditEvent) error {
	var leaseId any
	if event.LeaseId != "" {
		leaseId = event.LeaseId
	}
	_, err := t.conn.exec(ctx, queryInsertCredit, event.Id, leaseId, event.ExternalRef, event.Amount.String(),
		event.Asset, event.CreditedTo, utc(event.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCredit, event.ExternalRef)
		}
		return fmt.Errorf("failed to insert credit event: %w", err)
	}
	return nil
}
