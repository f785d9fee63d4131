// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/payouts/internal/models"
	"github.com/mmynk/payouts/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
//
// The pool is limited to a single connection, so every transaction holds the
// database exclusively from BEGIN to COMMIT. That makes the claim insert and
// the bounded total increment one serialization point.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// PRAGMAs are per connection; the pool keeps exactly one.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const distributionColumns = `id, asset_id, funding_asset, kind, status, source_kind, snapshot_id, merkle_root,
	gross_amount, platform_fee, maintenance_fee, platform_rate, maintenance_rate, fee_receiver, net_amount,
	total_claimed, claim_count, created_at, activated_at, closed_at, expires_at,
	recovered, recovered_amount, recovered_to, recovered_at, created_by, description`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (*models.Distribution, error) {
	d := &models.Distribution{}
	var gross, platformFee, maintenanceFee, net, totalClaimed, recoveredAmount int64
	err := row.Scan(
		&d.ID, &d.AssetID, &d.FundingAsset, &d.Kind, &d.Status,
		&d.Source.Kind, &d.Source.SnapshotID, &d.Source.MerkleRoot,
		&gross, &platformFee, &maintenanceFee, &d.PlatformRate, &d.MaintenanceRate, &d.FeeReceiver, &net,
		&totalClaimed, &d.ClaimCount, &d.CreatedAt, &d.ActivatedAt, &d.ClosedAt, &d.ExpiresAt,
		&d.Recovered, &recoveredAmount, &d.RecoveredTo, &d.RecoveredAt, &d.CreatedBy, &d.Description,
	)
	if err != nil {
		return nil, err
	}
	d.GrossAmount = uint64(gross)
	d.PlatformFee = uint64(platformFee)
	d.MaintenanceFee = uint64(maintenanceFee)
	d.NetAmount = uint64(net)
	d.TotalClaimed = uint64(totalClaimed)
	d.RecoveredAmount = uint64(recoveredAmount)
	return d, nil
}

// CreateDistribution persists a new distribution to the database.
func (s *SQLiteStore) CreateDistribution(ctx context.Context, d *models.Distribution) error {
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().Unix()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO distributions (asset_id, funding_asset, kind, status, source_kind, snapshot_id, merkle_root,
			gross_amount, platform_fee, maintenance_fee, platform_rate, maintenance_rate, fee_receiver, net_amount,
			created_at, expires_at, created_by, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AssetID, d.FundingAsset, string(d.Kind), string(d.Status),
		string(d.Source.Kind), d.Source.SnapshotID, d.Source.MerkleRoot,
		int64(d.GrossAmount), int64(d.PlatformFee), int64(d.MaintenanceFee),
		int64(d.PlatformRate), int64(d.MaintenanceRate), d.FeeReceiver, int64(d.NetAmount),
		d.CreatedAt, d.ExpiresAt, d.CreatedBy, d.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read distribution id: %w", err)
	}
	d.ID = id

	return nil
}

// GetDistribution retrieves a distribution by ID.
func (s *SQLiteStore) GetDistribution(ctx context.Context, id int64) (*models.Distribution, error) {
	d, err := scanDistribution(s.db.QueryRowContext(ctx,
		"SELECT "+distributionColumns+" FROM distributions WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution: %w", err)
	}
	return d, nil
}

// ListDistributions retrieves the distributions of an asset, newest first.
func (s *SQLiteStore) ListDistributions(ctx context.Context, assetID string) ([]*models.Distribution, error) {
	query := "SELECT " + distributionColumns + " FROM distributions"
	var args []any
	if assetID != "" {
		query += " WHERE asset_id = ?"
		args = append(args, assetID)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	var distributions []*models.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		distributions = append(distributions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate distributions: %w", err)
	}

	return distributions, nil
}

// UpdateDistribution applies a lifecycle mutation inside a transaction.
// Only status, timestamps and recovery columns are written back; amounts,
// fees and the entitlement source are immutable after creation.
func (s *SQLiteStore) UpdateDistribution(ctx context.Context, id int64, apply func(d *models.Distribution) error) (*models.Distribution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := getDistributionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(d); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE distributions SET status = ?, activated_at = ?, closed_at = ?,
			recovered = ?, recovered_amount = ?, recovered_to = ?, recovered_at = ?
		 WHERE id = ?`,
		string(d.Status), d.ActivatedAt, d.ClosedAt,
		d.Recovered, int64(d.RecoveredAmount), d.RecoveredTo, d.RecoveredAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update distribution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return d, nil
}

func getDistributionTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Distribution, error) {
	d, err := scanDistribution(tx.QueryRowContext(ctx,
		"SELECT "+distributionColumns+" FROM distributions WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution: %w", err)
	}
	return d, nil
}
