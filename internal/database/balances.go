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

func (s *Service) GetUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.conn.queryRow(ctx, queryGetBalance, userId, asset).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (s *Service) GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	rows, err := s.conn.query(ctx, queryGetAllUserBalances, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer closeRows(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var b models.AccountBalance
		var updated timeValue
		if err := rows.Scan(&b.Id, &b.UserId, &b.Asset, &b.Balance, &b.LastTransactionId, &b.Version, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.UpdatedAt = updated.Time
		if b.Balance.IsZero() {
			continue
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.conn.query(ctx, queryGetTransactionHistory, userId, asset, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	defer closeRows(rows)

	var history []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var created timeValue
		if err := rows.Scan(&tx.Id, &tx.UserId, &tx.Asset, &tx.TransactionType, &tx.Amount,
			&tx.BalanceBefore, &tx.BalanceAfter, &tx.ExternalRef, &tx.LeaseId, &tx.Reference, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.CreatedAt = created.Time
		history = append(history, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return history, nil
}

// ReconcileUserBalance recomputes a balance from its audit rows and reports drift.
func (s *Service) ReconcileUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error) {
	rows, err := s.conn.query(ctx, queryReconcileBalance, userId, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer closeRows(rows)

	calculated := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		calculated = calculated.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating transactions: %w", err)
	}
	closeRows(rows)

	current, err := s.GetUserBalance(ctx, userId, asset)
	if err != nil {
		return decimal.Zero, err
	}

	drift := current.Sub(calculated)
	if !drift.IsZero() {
		zap.L().Error("Balance mismatch detected",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("current_balance", current.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("drift", drift.String()))
	}
	return drift, nil
}

func (s *Service) CreditBalance(ctx context.Context, params store.BalanceChangeParams) (*models.Transaction, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", params.Amount)
	}
	if params.TransactionType == "" {
		params.TransactionType = models.TransactionTypeCredit
	}
	return s.applyInTx(ctx, params)
}

// DebitBalance removes funds and refuses to take the balance below zero.
func (s *Service) DebitBalance(ctx context.Context, params store.BalanceChangeParams) (*models.Transaction, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("debit amount must be positive, got %s", params.Amount)
	}
	params.Amount = params.Amount.Neg()
	if params.TransactionType == "" {
		params.TransactionType = models.TransactionTypeDebit
	}
	return s.applyInTx(ctx, params)
}

func (s *Service) applyInTx(ctx context.Context, params store.BalanceChangeParams) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = tx.ApplyBalanceChange(ctx, params, time.Now())
		return err
	})
	return result, err
}

// ApplyBalanceChange atomically updates the balance row and records the audit transaction.
// The balance row is guarded by an optimistic version check.
func (t *txn) ApplyBalanceChange(ctx context.Context, params store.BalanceChangeParams, now time.Time) (*models.Transaction, error) {
	now = utc(now)

	zap.L().Debug("Applying balance change",
		zap.String("user_id", params.UserId),
		zap.String("asset", params.Asset),
		zap.String("type", params.TransactionType),
		zap.String("amount", params.Amount.String()),
		zap.String("external_ref", params.ExternalRef))

	var accountId string
	var currentBalance decimal.Decimal
	var version int64

	selectBalance := func() error {
		return t.conn.queryRow(ctx, fmt.Sprintf(queryGetAccountBalance, t.dialect.forUpdate), params.UserId, params.Asset).
			Scan(&accountId, &currentBalance, &version)
	}
	err := selectBalance()
	if errors.Is(err, sql.ErrNoRows) {
		// A concurrent first credit may insert the row first; the insert is then a no-op
		// and the re-select waits on its lock.
		if _, err := t.conn.exec(ctx, queryInsertAccountBalance, uuid.New().String(), params.UserId, params.Asset, now); err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
		err = selectBalance()
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account balance for %s/%s vanished - %w", params.UserId, params.Asset, store.ErrConcurrentModification)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	newBalance := currentBalance.Add(params.Amount)
	if params.Amount.IsNegative() && newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s, debit %s", store.ErrInsufficientBalance, currentBalance, params.Amount.Neg())
	}

	transaction := &models.Transaction{
		Id:              uuid.New().String(),
		UserId:          params.UserId,
		Asset:           params.Asset,
		TransactionType: params.TransactionType,
		Amount:          params.Amount,
		BalanceBefore:   currentBalance,
		BalanceAfter:    newBalance,
		ExternalRef:     params.ExternalRef,
		LeaseId:         params.LeaseId,
		Reference:       params.Reference,
		CreatedAt:       now,
	}

	_, err = t.conn.exec(ctx, queryInsertTransaction,
		transaction.Id, transaction.UserId, transaction.Asset, transaction.TransactionType,
		transaction.Amount.String(), transaction.BalanceBefore.String(), transaction.BalanceAfter.String(),
		transaction.ExternalRef, transaction.LeaseId, transaction.Reference, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	result, err := t.conn.exec(ctx, queryUpdateAccountBalance, newBalance.String(), transaction.Id, now,
		params.UserId, params.Asset, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	zap.L().Info("Balance updated",
		zap.String("transaction_id", transaction.Id),
		zap.String("user_id", params.UserId),
		zap.String("asset", params.Asset),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()))

	return transaction, nil
}
