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

func (s *Service) GetOrderByLease(ctx context.Context, leaseId string) (*models.Order, error) {
	o, err := scanOrder(s.conn.queryRow(ctx, queryGetOrderByLease, leaseId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lease %s", store.ErrOrderNotFound, leaseId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// CancelPendingOrders cancels every PENDING order attached to a lease outside any lease transition.
func (s *Service) CancelPendingOrders(ctx context.Context, leaseId, reason string, now time.Time) (int64, error) {
	return settlePendingOrders(ctx, s.conn, leaseId, models.OrderStatusCancelled, reason, now)
}

func settlePendingOrders(ctx context.Context, c conn, leaseId string, status models.OrderStatus, reason string, now time.Time) (int64, error) {
	var r any
	if reason != "" {
		r = reason
	}
	result, err := c.exec(ctx, querySettlePendingOrders, string(status), r, utc(now), leaseId)
	if err != nil {
		return 0, fmt.Errorf("failed to settle orders: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// Tx operations

func (t *txn) InsertOrder(ctx context.Context, order *models.Order) error {
	created := utc(order.CreatedAt)
	_, err := t.conn.exec(ctx, queryInsertOrder, order.Id, order.UserId, order.LeaseId, order.ResourceId,
		order.Side, order.FiatAmount.String(), order.Asset, string(order.Status), created, created)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *txn) SettlePendingOrders(ctx context.Context, leaseId string, status models.OrderStatus, reason string, now time.Time) (int64, error) {
	return settlePendingOrders(ctx, t.conn, leaseId, status, reason, now)
}
