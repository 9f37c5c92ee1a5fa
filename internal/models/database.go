package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a balance holder and the subject of leases
type User struct {
	Id        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccountBalance is the current balance row for a user and asset (hot data)
type AccountBalance struct {
	Id                string          `db:"id" json:"id"`
	UserId            string          `db:"user_id" json:"user_id"`
	Asset             string          `db:"asset" json:"asset"`
	Balance           decimal.Decimal `db:"balance" json:"balance"`
	LastTransactionId string          `db:"last_transaction_id" json:"last_transaction_id,omitempty"`
	Version           int64           `db:"version" json:"version"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Transaction is the immutable audit row written for every balance change (cold data)
type Transaction struct {
	Id              string          `db:"id" json:"id"`
	UserId          string          `db:"user_id" json:"user_id"`
	Asset           string          `db:"asset" json:"asset"`
	TransactionType string          `db:"transaction_type" json:"transaction_type"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore   decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter    decimal.Decimal `db:"balance_after" json:"balance_after"`
	ExternalRef     string          `db:"external_transaction_id" json:"external_ref,omitempty"`
	LeaseId         string          `db:"lease_id" json:"lease_id,omitempty"`
	Reference       string          `db:"reference" json:"reference,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)
