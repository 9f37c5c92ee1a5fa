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

package database

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = TRUE
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, active, created_at, updated_at)
		VALUES (?, ?, ?, TRUE, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = TRUE`

	// Pool queries
	resourceColumns = `id, kind, resource_key, network, denomination, state, last_used_at,
		usage_count, cumulative_credited, created_by, created_at, updated_at`

	queryInsertResource = `
		INSERT INTO pool_resources (id, kind, resource_key, network, denomination, state, last_used_at,
			usage_count, cumulative_credited, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'AVAILABLE', ?, 0, '0', ?, ?, ?)`

	queryInsertClaimDetails = `
		INSERT INTO claim_details (resource_id, bank_name, account_number, ifsc_code, account_holder, amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetClaimDetails = `
		SELECT bank_name, account_number, ifsc_code, account_holder, amount
		FROM claim_details
		WHERE resource_id = ?`

	queryGetResource = `
		SELECT ` + resourceColumns + `
		FROM pool_resources
		WHERE id = ?`

	queryListResources = `
		SELECT ` + resourceColumns + `
		FROM pool_resources
		WHERE (CAST(? AS TEXT) = '' OR kind = ?) AND (CAST(? AS TEXT) = '' OR state = ?)
		ORDER BY kind, last_used_at, usage_count, id`

	// querySelectAvailableTemplate takes the dialect's row-lock clause. The outer
	// state predicate makes the claim a compare-and-swap even without row locks.
	querySelectAvailableTemplate = `
		UPDATE pool_resources
		SET state = 'LEASED', last_used_at = ?, usage_count = usage_count + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM pool_resources
			WHERE kind = ? AND state = 'AVAILABLE' AND (CAST(? AS TEXT) = '' OR denomination = ?)
			ORDER BY last_used_at, usage_count, id
			LIMIT 1 %s
		) AND state = 'AVAILABLE'
		RETURNING ` + resourceColumns

	queryReleaseResource = `
		UPDATE pool_resources
		SET state = 'AVAILABLE', last_used_at = ?, updated_at = ?
		WHERE id = ? AND state = 'LEASED'
		  AND NOT EXISTS (SELECT 1 FROM leases WHERE resource_id = ? AND active = TRUE)`

	queryDisableResource = `
		UPDATE pool_resources
		SET state = 'DISABLED', updated_at = ?
		WHERE id = ? AND state = 'AVAILABLE'`

	queryEnableResource = `
		UPDATE pool_resources
		SET state = 'AVAILABLE', updated_at = ?
		WHERE id = ? AND state = 'DISABLED'`

	queryGetCreditedAmount = `
		SELECT cumulative_credited FROM pool_resources WHERE id = ? %s`

	queryUpdateCreditedAmount = `
		UPDATE pool_resources
		SET cumulative_credited = ?, updated_at = ?
		WHERE id = ?`

	queryListOrphanedResources = `
		SELECT ` + resourceColumns + `
		FROM pool_resources r
		WHERE r.state = 'LEASED'
		  AND NOT EXISTS (SELECT 1 FROM leases l WHERE l.resource_id = r.id AND l.active = TRUE)
		ORDER BY r.updated_at`

	// Lease queries
	leaseColumns = `l.id, l.kind, l.resource_id, r.resource_key, r.denomination, l.holder_id,
		l.assigned_at, l.expires_at, l.active, l.outcome, l.ended_at`

	queryInsertLease = `
		INSERT INTO leases (id, kind, resource_id, holder_id, assigned_at, expires_at, active)
		VALUES (?, ?, ?, ?, ?, ?, TRUE)`

	queryGetLease = `
		SELECT ` + leaseColumns + `
		FROM leases l
		JOIN pool_resources r ON r.id = l.resource_id
		WHERE l.id = ?`

	queryGetActiveLeaseForHolder = `
		SELECT ` + leaseColumns + `
		FROM leases l
		JOIN pool_resources r ON r.id = l.resource_id
		WHERE l.kind = ? AND l.holder_id = ? AND l.active = TRUE`

	queryListActiveLeases = `
		SELECT ` + leaseColumns + `
		FROM leases l
		JOIN pool_resources r ON r.id = l.resource_id
		WHERE l.kind = ? AND l.active = TRUE
		ORDER BY l.assigned_at, l.id`

	queryListLeasesForResource = `
		SELECT ` + leaseColumns + `
		FROM leases l
		JOIN pool_resources r ON r.id = l.resource_id
		WHERE l.resource_id = ?
		ORDER BY l.assigned_at DESC, l.id`

	queryLockLease = `
		SELECT active, expires_at FROM leases WHERE id = ? %s`

	queryDeactivateLease = `
		UPDATE leases
		SET active = FALSE, outcome = ?, ended_at = ?
		WHERE id = ? AND active = TRUE`

	// Credit queries
	creditColumns = `id, lease_id, external_ref, amount, asset, credited_to, created_at, mirrored_at`

	queryCheckDuplicateCredit = `
		SELECT id FROM credit_events WHERE external_ref = ? LIMIT 1`

	queryInsertCredit = `
		INSERT INTO credit_events (id, lease_id, external_ref, amount, asset, credited_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetCreditForLease = `
		SELECT ` + creditColumns + `
		FROM credit_events
		WHERE lease_id = ?
		ORDER BY created_at
		LIMIT 1`

	queryListUnmirroredCredits = `
		SELECT ` + creditColumns + `
		FROM credit_events
		WHERE mirrored_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`

	queryMarkCreditMirrored = `
		UPDATE credit_events SET mirrored_at = ? WHERE id = ? AND mirrored_at IS NULL`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ? AND asset = ?`

	queryGetAllUserBalances = `
		SELECT id, user_id, asset, balance, last_transaction_id, version, updated_at
		FROM account_balances
		WHERE user_id = ?
		ORDER BY asset`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE user_id = ? AND asset = ? %s`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, asset, balance, version, updated_at)
		VALUES (?, ?, ?, '0', 1, ?)
		ON CONFLICT (user_id, asset) DO NOTHING`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND asset = ? AND version = ?`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, asset, transaction_type, amount, balance_before, balance_after,
			external_transaction_id, lease_id, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, asset, transaction_type, amount, balance_before, balance_after,
		       external_transaction_id, lease_id, reference, created_at
		FROM transactions
		WHERE user_id = ? AND asset = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryReconcileBalance = `
		SELECT amount
		FROM transactions
		WHERE user_id = ? AND asset = ?`

	// Order queries
	orderColumns = `id, user_id, lease_id, resource_id, side, fiat_amount, asset, status, reason, created_at, updated_at`

	queryInsertOrder = `
		INSERT INTO orders (id, user_id, lease_id, resource_id, side, fiat_amount, asset, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetOrderByLease = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE lease_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	querySettlePendingOrders = `
		UPDATE orders
		SET status = ?, reason = ?, updated_at = ?
		WHERE lease_id = ? AND status = 'PENDING'`

	// Confirmation queries
	confirmationColumns = `id, lease_id, external_ref, amount, asset, approved, note, created_at`

	queryInsertConfirmation = `
		INSERT INTO claim_confirmations (id, lease_id, external_ref, amount, asset, approved, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryConfirmationExists = `
		SELECT 1 FROM claim_confirmations WHERE lease_id = ? LIMIT 1`

	queryListConfirmations = `
		SELECT ` + confirmationColumns + `
		FROM claim_confirmations
		WHERE lease_id = ?
		ORDER BY created_at, id`
)
