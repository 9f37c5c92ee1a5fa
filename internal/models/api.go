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

// DepositAddress is returned by requestDepositAddress
type DepositAddress struct {
	ResourceKey string    `json:"resource_key"`
	Network     string    `json:"network,omitempty"`
	Asset       string    `json:"asset"`
	LeaseId     string    `json:"lease_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Reused      bool      `json:"reused"`
}

// DepositStatus is returned by checkDepositStatus
type DepositStatus struct {
	LeaseId     string       `json:"lease_id"`
	ResourceKey string       `json:"resource_key"`
	Active      bool         `json:"active"`
	Fulfilled   bool         `json:"fulfilled"`
	Outcome     LeaseOutcome `json:"outcome,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreditEvent *CreditEvent `json:"credit_event,omitempty"`
}

// Terminal reports whether no further status change can happen.
func (s *DepositStatus) Terminal() bool {
	return !s.Active
}

// ClaimAssignment is returned by requestClaim
type ClaimAssignment struct {
	Claim     ClaimDetails `json:"claim"`
	LeaseId   string       `json:"lease_id"`
	OrderId   string       `json:"order_id"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// UserBalance represents a user's balance for a specific asset
type UserBalance struct {
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}

// ErrorResponse is the JSON body of every non-2xx API reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
