package database

// schemaTemplate is shared by both dialects; {{timestamp}} and {{bigint}} are
// replaced with the dialect's column types. Amounts are TEXT decimals.
const schemaTemplate = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pool_resources (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		resource_key TEXT NOT NULL,
		network TEXT NOT NULL DEFAULT '',
		denomination TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		last_used_at {{timestamp}} NOT NULL,
		usage_count {{bigint}} NOT NULL DEFAULT 0,
		cumulative_credited TEXT NOT NULL DEFAULT '0',
		created_by TEXT NOT NULL DEFAULT '',
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		UNIQUE(kind, resource_key)
	);

	CREATE INDEX IF NOT EXISTS idx_pool_resources_selection
		ON pool_resources(kind, state, last_used_at, usage_count);

	CREATE TABLE IF NOT EXISTS claim_details (
		resource_id TEXT PRIMARY KEY REFERENCES pool_resources(id) ON DELETE CASCADE,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		ifsc_code TEXT NOT NULL,
		account_holder TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		resource_id TEXT NOT NULL REFERENCES pool_resources(id),
		holder_id TEXT NOT NULL,
		assigned_at {{timestamp}} NOT NULL,
		expires_at {{timestamp}} NOT NULL,
		active BOOLEAN NOT NULL,
		outcome TEXT,
		ended_at {{timestamp}}
	);

	-- At most one active lease per resource, and per holder per kind.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leases_active_resource
		ON leases(resource_id) WHERE active = TRUE;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leases_active_holder
		ON leases(kind, holder_id) WHERE active = TRUE;
	CREATE INDEX IF NOT EXISTS idx_leases_kind_active ON leases(kind, active);

	CREATE TABLE IF NOT EXISTS credit_events (
		id TEXT PRIMARY KEY,
		lease_id TEXT REFERENCES leases(id),
		external_ref TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		asset TEXT NOT NULL,
		credited_to TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL,
		mirrored_at {{timestamp}}
	);

	CREATE INDEX IF NOT EXISTS idx_credit_events_lease ON credit_events(lease_id);

	CREATE TABLE IF NOT EXISTS account_balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_transaction_id TEXT NOT NULL DEFAULT '',
		version {{bigint}} NOT NULL DEFAULT 1,
		updated_at {{timestamp}} NOT NULL,
		UNIQUE(user_id, asset)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		external_transaction_id TEXT NOT NULL DEFAULT '',
		lease_id TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		created_at {{timestamp}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_asset ON transactions(user_id, asset);
	CREATE INDEX IF NOT EXISTS idx_transactions_external_id ON transactions(external_transaction_id);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		lease_id TEXT NOT NULL REFERENCES leases(id),
		resource_id TEXT NOT NULL,
		side TEXT NOT NULL,
		fiat_amount TEXT NOT NULL,
		asset TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_lease ON orders(lease_id, status);

	CREATE TABLE IF NOT EXISTS claim_confirmations (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL REFERENCES leases(id),
		external_ref TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		asset TEXT NOT NULL,
		approved BOOLEAN NOT NULL,
		note TEXT,
		created_at {{timestamp}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claim_confirmations_lease ON claim_confirmations(lease_id);
`
