package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/payouts/internal/models"
	"github.com/mmynk/payouts/internal/storage"
)

// ClaimRequest is one beneficiary's attempt to collect from a distribution.
type ClaimRequest struct {
	DistributionID int64
	BeneficiaryID  string
	Amount         uint64

	// Proof is the hex-encoded sibling path. Required for allowlist distributions.
	Proof []string
}

// Claim pays a beneficiary at most once per distribution.
//
// The claim record, the running total and the payment commit together or not
// at all. Two concurrent claims by the same beneficiary yield one success and
// one ErrAlreadyClaimed.
func (e *Engine) Claim(ctx context.Context, req ClaimRequest) (*models.ClaimRecord, error) {
	start := time.Now()
	funding := ""
	record, err := e.claim(ctx, req, &funding)

	result := "ok"
	if err != nil {
		result = reason(err)
		e.logClaimFailure(req, err)
	}
	e.metrics.Claim(result, funding, req.Amount, time.Since(start))
	if err != nil {
		return nil, err
	}

	e.logger.Info("Claim paid",
		"distribution_id", record.DistributionID, "beneficiary_id", record.BeneficiaryID, "amount", record.Amount)
	return record, nil
}

func (e *Engine) claim(ctx context.Context, req ClaimRequest, funding *string) (*models.ClaimRecord, error) {
	req.BeneficiaryID = strings.TrimSpace(req.BeneficiaryID)
	if err := validID("beneficiary id", req.BeneficiaryID); err != nil {
		return nil, err
	}
	if err := validAmount(req.Amount); err != nil {
		return nil, err
	}

	d, err := e.GetDistribution(ctx, req.DistributionID)
	if err != nil {
		return nil, err
	}
	*funding = d.FundingAsset

	now := e.now().Unix()
	if err := e.claimable(d, now); err != nil {
		return nil, err
	}

	if _, err := e.store.GetClaim(ctx, d.ID, req.BeneficiaryID); err == nil {
		return nil, fmt.Errorf("%w: %s on %d", ErrAlreadyClaimed, req.BeneficiaryID, d.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	r, err := e.resolverFor(d.Source)
	if err != nil {
		return nil, err
	}
	entitled, err := r.entitlement(ctx, d, req.BeneficiaryID, req.Amount, req.Proof)
	if err != nil {
		return nil, err
	}
	if req.Amount > entitled {
		return nil, fmt.Errorf("%w: requested %d, entitled to %d", ErrAmountExceedsEntitlement, req.Amount, entitled)
	}
	if d.TotalClaimed+req.Amount > d.NetAmount {
		return nil, fmt.Errorf("%w: claimed %d + %d > net %d",
			ErrInsufficientRemainingPool, d.TotalClaimed, req.Amount, d.NetAmount)
	}

	record := &models.ClaimRecord{
		DistributionID: d.ID,
		BeneficiaryID:  req.BeneficiaryID,
		Amount:         req.Amount,
		ClaimedAt:      now,
	}
	ref := fmt.Sprintf("claim:%d:%s", d.ID, req.BeneficiaryID)

	_, err = e.store.CreateClaim(ctx, record,
		func(d *models.Distribution) error {
			// Re-checked under the transaction: the row may have moved since the read above.
			return e.claimable(d, now)
		},
		func(d *models.Distribution) error {
			if err := e.payments.Transfer(ctx, ref, d.FundingAsset, escrowAccount(d.ID), req.BeneficiaryID, req.Amount); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransferFailed, ref, err)
			}
			return nil
		},
	)
	switch {
	case errors.Is(err, storage.ErrClaimExists):
		return nil, fmt.Errorf("%w: %s on %d", ErrAlreadyClaimed, req.BeneficiaryID, d.ID)
	case errors.Is(err, storage.ErrPoolExhausted):
		return nil, fmt.Errorf("%w: %v", ErrInsufficientRemainingPool, err)
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: %d", ErrDistributionNotFound, d.ID)
	case err != nil:
		return nil, err
	}
	return record, nil
}

// claimable reports whether d accepts claims at now.
func (e *Engine) claimable(d *models.Distribution, now int64) error {
	if d.Recovered {
		return fmt.Errorf("%w: %d was swept", ErrDistributionNotActive, d.ID)
	}
	switch d.Status {
	case models.StatusActive:
	case models.StatusCompleted:
		if !e.claimsAfterCompletion {
			return fmt.Errorf("%w: %d is completed", ErrDistributionNotActive, d.ID)
		}
	default:
		return fmt.Errorf("%w: %d is %s", ErrDistributionNotActive, d.ID, d.Status)
	}
	if d.Expired(now) {
		return fmt.Errorf("%w: %d expired at %d", ErrDistributionNotActive, d.ID, d.ExpiresAt)
	}
	return nil
}

func (e *Engine) logClaimFailure(req ClaimRequest, err error) {
	attrs := []any{
		"distribution_id", req.DistributionID, "beneficiary_id", req.BeneficiaryID,
		"amount", req.Amount, "error", err,
	}
	switch ClassOf(err) {
	case ClassArithmetic, ClassUnknown:
		e.logger.Error("Claim rejected", attrs...)
	case ClassConflict, ClassDependency:
		e.logger.Warn("Claim rejected", attrs...)
	default:
		e.logger.Debug("Claim rejected", attrs...)
	}
}

// reason is a short metric label for a claim failure.
func reason(err error) string {
	for _, r := range []struct {
		err   error
		label string
	}{
		{ErrAlreadyClaimed, "already_claimed"},
		{ErrAmountExceedsEntitlement, "exceeds_entitlement"},
		{ErrInsufficientRemainingPool, "pool_exhausted"},
		{ErrInvalidProof, "invalid_proof"},
		{ErrDistributionNotActive, "not_active"},
		{ErrTransferFailed, "transfer_failed"},
	} {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return ClassOf(err).String()
}
