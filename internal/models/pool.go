/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceKind distinguishes the two leasable inventories.
type ResourceKind string

const (
	ResourceKindWallet ResourceKind = "WALLET"
	ResourceKindClaim  ResourceKind = "CLAIM"
)

func (k ResourceKind) Valid() bool {
	return k == ResourceKindWallet || k == ResourceKindClaim
}

type ResourceState string

const (
	ResourceStateAvailable ResourceState = "AVAILABLE"
	ResourceStateLeased    ResourceState = "LEASED"
	ResourceStateDisabled  ResourceState = "DISABLED"
)

// LeaseOutcome is recorded when a lease leaves the active state.
type LeaseOutcome string

const (
	LeaseOutcomeFulfilled LeaseOutcome = "FULFILLED"
	LeaseOutcomeExpired   LeaseOutcome = "EXPIRED"
	LeaseOutcomeReleased  LeaseOutcome = "RELEASED"
)

func (o LeaseOutcome) Valid() bool {
	switch o {
	case LeaseOutcomeFulfilled, LeaseOutcomeExpired, LeaseOutcomeReleased:
		return true
	}
	return false
}

// PoolResource is a reusable custodial handle: a receive address or a pre-funded bank claim.
type PoolResource struct {
	Id                 string          `db:"id" json:"id"`
	Kind               ResourceKind    `db:"kind" json:"kind"`
	ResourceKey        string          `db:"resource_key" json:"resource_key"`
	Network            string          `db:"network" json:"network,omitempty"`
	Denomination       string          `db:"denomination" json:"denomination,omitempty"`
	State              ResourceState   `db:"state" json:"state"`
	LastUsedAt         time.Time       `db:"last_used_at" json:"last_used_at"`
	UsageCount         int64           `db:"usage_count" json:"usage_count"`
	CumulativeCredited decimal.Decimal `db:"cumulative_credited" json:"cumulative_credited"`
	CreatedBy          string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
	Claim              *ClaimDetails   `json:"claim,omitempty"`
}

// ClaimDetails holds the bank coordinates behind a CLAIM resource.
type ClaimDetails struct {
	BankName      string          `db:"bank_name" json:"bank_name"`
	AccountNumber string          `db:"account_number" json:"account_number"`
	IfscCode      string          `db:"ifsc_code" json:"ifsc_code"`
	AccountHolder string          `db:"account_holder" json:"account_holder"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
}

// Lease is a time-bounded exclusive assignment of one PoolResource to one holder.
// Once Active is false the lease is terminal.
type Lease struct {
	Id          string       `db:"id" json:"id"`
	Kind        ResourceKind `db:"kind" json:"kind"`
	ResourceId  string       `db:"resource_id" json:"resource_id"`
	ResourceKey string       `json:"resource_key"`
	HolderId    string       `db:"holder_id" json:"holder_id"`
	AssignedAt  time.Time    `db:"assigned_at" json:"assigned_at"`
	ExpiresAt   time.Time    `db:"expires_at" json:"expires_at"`
	Active      bool         `db:"active" json:"active"`
	Outcome     LeaseOutcome `db:"outcome" json:"outcome,omitempty"`
	EndedAt     *time.Time   `db:"ended_at" json:"ended_at,omitempty"`

	// Denomination of the backing resource, empty for wallets
	Denomination string `json:"denomination,omitempty"`
}

// Remaining returns how long the lease has left at now (negative once expired).
func (l *Lease) Remaining(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

// InWindow reports whether t falls inside [AssignedAt, ExpiresAt].
func (l *Lease) InWindow(t time.Time) bool {
	return !t.Before(l.AssignedAt) && !t.After(l.ExpiresAt)
}

// CreditEvent records one applied external transfer. ExternalRef is globally unique.
type CreditEvent struct {
	Id          string          `db:"id" json:"id"`
	LeaseId     string          `db:"lease_id" json:"lease_id,omitempty"`
	ExternalRef string          `db:"external_ref" json:"external_ref"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Asset       string          `db:"asset" json:"asset"`
	CreditedTo  string          `db:"credited_to" json:"credited_to"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	MirroredAt  *time.Time      `db:"mirrored_at" json:"-"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is a fiat-side buy settled against a claim lease.
type Order struct {
	Id         string          `db:"id" json:"id"`
	UserId     string          `db:"user_id" json:"user_id"`
	LeaseId    string          `db:"lease_id" json:"lease_id"`
	ResourceId string          `db:"resource_id" json:"resource_id"`
	Side       string          `db:"side" json:"side"`
	FiatAmount decimal.Decimal `db:"fiat_amount" json:"fiat_amount"`
	Asset      string          `db:"asset" json:"asset"`
	Status     OrderStatus     `db:"status" json:"status"`
	Reason     string          `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Transfer is one incoming on-chain movement reported by a chain oracle.
type Transfer struct {
	ExternalRef   string
	Amount        decimal.Decimal
	Confirmations int
	Timestamp     time.Time
	Asset         string
}

// Confirmation is an operator verdict on a claim lease.
type Confirmation struct {
	Id          string          `db:"id" json:"id"`
	LeaseId     string          `db:"lease_id" json:"lease_id"`
	ExternalRef string          `db:"external_ref" json:"external_ref"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Asset       string          `db:"asset" json:"asset"`
	Approved    bool            `db:"approved" json:"approved"`
	Note        string          `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
