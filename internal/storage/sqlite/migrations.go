package sqlite

import "database/sql"

// schema sets up the database. It runs on startup to ensure tables exist.
// The CHECK constraints mirror the accounting invariants so a buggy caller
// cannot persist an inconsistent pool.
const schema = `
CREATE TABLE IF NOT EXISTS distributions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id TEXT NOT NULL,
    funding_asset TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    source_kind TEXT NOT NULL CHECK (source_kind IN ('snapshot', 'merkle')),
    snapshot_id TEXT NOT NULL DEFAULT '',
    merkle_root TEXT NOT NULL DEFAULT '',
    gross_amount INTEGER NOT NULL CHECK (gross_amount >= 0),
    platform_fee INTEGER NOT NULL CHECK (platform_fee >= 0),
    maintenance_fee INTEGER NOT NULL CHECK (maintenance_fee >= 0),
    platform_rate INTEGER NOT NULL,
    maintenance_rate INTEGER NOT NULL,
    fee_receiver TEXT NOT NULL DEFAULT '',
    net_amount INTEGER NOT NULL,
    total_claimed INTEGER NOT NULL DEFAULT 0,
    claim_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    activated_at INTEGER NOT NULL DEFAULT 0,
    closed_at INTEGER NOT NULL DEFAULT 0,
    expires_at INTEGER NOT NULL DEFAULT 0,
    recovered INTEGER NOT NULL DEFAULT 0,
    recovered_amount INTEGER NOT NULL DEFAULT 0,
    recovered_to TEXT NOT NULL DEFAULT '',
    recovered_at INTEGER NOT NULL DEFAULT 0,
    created_by TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    CHECK (platform_fee + maintenance_fee <= gross_amount),
    CHECK (net_amount = gross_amount - platform_fee - maintenance_fee),
    CHECK (total_claimed >= 0 AND total_claimed <= net_amount)
);

CREATE TABLE IF NOT EXISTS claims (
    distribution_id INTEGER NOT NULL,
    beneficiary_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    claimed_at INTEGER NOT NULL,
    PRIMARY KEY (distribution_id, beneficiary_id),
    FOREIGN KEY (distribution_id) REFERENCES distributions(id)
);

CREATE INDEX IF NOT EXISTS idx_distributions_asset_id ON distributions(asset_id);
CREATE INDEX IF NOT EXISTS idx_claims_distribution_id ON claims(distribution_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
