package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/payouts/internal/models"
	"github.com/mmynk/payouts/internal/storage"
)

// CreateClaim records a claim and bumps the distribution total in one transaction.
func (s *SQLiteStore) CreateClaim(
	ctx context.Context,
	claim *models.ClaimRecord,
	check func(d *models.Distribution) error,
	settle func(d *models.Distribution) error,
) (*models.Distribution, error) {
	if claim.ClaimedAt == 0 {
		claim.ClaimedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d, err := getDistributionTx(ctx, tx, claim.DistributionID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(d); err != nil {
			return nil, err
		}
	}

	// The primary key is the uniqueness constraint; a conflict means the
	// beneficiary already claimed.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO claims (distribution_id, beneficiary_id, amount, claimed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (distribution_id, beneficiary_id) DO NOTHING`,
		claim.DistributionID, claim.BeneficiaryID, int64(claim.Amount), claim.ClaimedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read claim insert result: %w", err)
	} else if n == 0 {
		return nil, storage.ErrClaimExists
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE distributions SET total_claimed = total_claimed + ?, claim_count = claim_count + 1
		 WHERE id = ? AND total_claimed + ? <= net_amount`,
		int64(claim.Amount), claim.DistributionID, int64(claim.Amount),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update claimed total: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read total update result: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: claimed %d + %d > net %d",
			storage.ErrPoolExhausted, d.TotalClaimed, claim.Amount, d.NetAmount)
	}
	d.TotalClaimed += claim.Amount
	d.ClaimCount++

	if settle != nil {
		if err := settle(d); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return d, nil
}

// GetClaim retrieves the claim of a beneficiary on a distribution.
func (s *SQLiteStore) GetClaim(ctx context.Context, distributionID int64, beneficiaryID string) (*models.ClaimRecord, error) {
	claim := &models.ClaimRecord{}
	var amount int64

	err := s.db.QueryRowContext(ctx,
		`SELECT distribution_id, beneficiary_id, amount, claimed_at
		 FROM claims WHERE distribution_id = ? AND beneficiary_id = ?`,
		distributionID, beneficiaryID,
	).Scan(&claim.DistributionID, &claim.BeneficiaryID, &amount, &claim.ClaimedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %d/%s: %w", distributionID, beneficiaryID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	claim.Amount = uint64(amount)

	return claim, nil
}

// ListClaims retrieves all claims for a distribution.
func (s *SQLiteStore) ListClaims(ctx context.Context, distributionID int64) ([]*models.ClaimRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT distribution_id, beneficiary_id, amount, claimed_at
		 FROM claims WHERE distribution_id = ? ORDER BY claimed_at, rowid`,
		distributionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.ClaimRecord
	for rows.Next() {
		claim := &models.ClaimRecord{}
		var amount int64
		if err := rows.Scan(&claim.DistributionID, &claim.BeneficiaryID, &amount, &claim.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claim.Amount = uint64(amount)
		claims = append(claims, claim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}

	return claims, nil
}
