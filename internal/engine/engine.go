// Package engine implements the distribution lifecycle: fee extraction,
// entitlement resolution, exactly-once claims and recovery of unclaimed funds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mmynk/payouts/internal/calculator"
	"github.com/mmynk/payouts/internal/merkle"
	"github.com/mmynk/payouts/internal/metrics"
	"github.com/mmynk/payouts/internal/models"
	"github.com/mmynk/payouts/internal/storage"
)

// Options tune engine behavior.
type Options struct {
	// ClaimsAfterCompletion keeps claims open on Completed distributions
	// until they expire or are swept.
	ClaimsAfterCompletion bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{ClaimsAfterCompletion: true}
}

// Engine owns every distribution and claim. It is safe for concurrent use;
// all state changes are serialized by the store's transactions.
type Engine struct {
	store    storage.Store
	ledger   AssetLedger
	payments Payments
	fees     FeePolicy

	claimsAfterCompletion bool
	now                   func() time.Time
	logger                *slog.Logger
	metrics               *metrics.Collector
}

// New creates an engine over the given collaborators.
func New(store storage.Store, ledger AssetLedger, payments Payments, fees FeePolicy, opts Options) *Engine {
	e := &Engine{
		store:                 store,
		ledger:                ledger,
		payments:              payments,
		fees:                  fees,
		claimsAfterCompletion: opts.ClaimsAfterCompletion,
		now:                   opts.Now,
		logger:                opts.Logger,
		metrics:               opts.Metrics,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// CreateRequest describes a new distribution.
type CreateRequest struct {
	AssetID      string
	FundingAsset string
	Kind         models.Kind
	GrossAmount  uint64

	// At most one of SnapshotID and MerkleRoot may be set. With neither, a
	// snapshot of AssetID is taken now.
	SnapshotID string
	MerkleRoot string

	// ExpiresAt is a unix timestamp; 0 never expires.
	ExpiresAt   int64
	Description string
	CreatedBy   string
}

// CreateDistribution validates the request, locks in fees and persists a
// Pending distribution.
func (e *Engine) CreateDistribution(ctx context.Context, req CreateRequest) (*models.Distribution, error) {
	req.AssetID = strings.TrimSpace(req.AssetID)
	req.FundingAsset = strings.TrimSpace(req.FundingAsset)

	if err := validID("asset id", req.AssetID); err != nil {
		return nil, err
	}
	if err := validID("funding asset", req.FundingAsset); err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, req.Kind)
	}
	if err := validAmount(req.GrossAmount); err != nil {
		return nil, err
	}
	now := e.now().Unix()
	if req.ExpiresAt != 0 && req.ExpiresAt <= now {
		return nil, fmt.Errorf("%w: expiry %d is not in the future", ErrInvalidArgument, req.ExpiresAt)
	}

	source, err := e.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	platformRate, maintenanceRate := e.fees.PlatformRate(), e.fees.MaintenanceRate()
	fees, err := calculator.ComputeNet(req.GrossAmount, platformRate, maintenanceRate)
	if errors.Is(err, calculator.ErrInvalidRate) {
		return nil, fmt.Errorf("%w: %v", ErrFeePolicy, err)
	}
	if err != nil {
		e.logger.Error("CreateDistribution: fee extraction failed",
			"asset_id", req.AssetID, "gross", req.GrossAmount,
			"platform_bps", platformRate, "maintenance_bps", maintenanceRate, "error", err)
		return nil, err
	}
	if fees.Platform+fees.Maintenance > 0 && e.fees.FeeReceiver() == "" {
		return nil, fmt.Errorf("%w: fees are charged but no fee receiver is set", ErrFeePolicy)
	}

	d := &models.Distribution{
		AssetID:         req.AssetID,
		FundingAsset:    req.FundingAsset,
		Kind:            req.Kind,
		Status:          models.StatusPending,
		Source:          source,
		GrossAmount:     req.GrossAmount,
		PlatformFee:     fees.Platform,
		MaintenanceFee:  fees.Maintenance,
		PlatformRate:    platformRate,
		MaintenanceRate: maintenanceRate,
		FeeReceiver:     e.fees.FeeReceiver(),
		NetAmount:       fees.Net,
		ExpiresAt:       req.ExpiresAt,
		CreatedBy:       req.CreatedBy,
		Description:     req.Description,
	}
	if err := e.store.CreateDistribution(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save distribution: %w", err)
	}

	e.metrics.DistributionCreated(string(d.Kind), string(d.Source.Kind), d.FundingAsset, d.PlatformFee, d.MaintenanceFee)
	e.logger.Info("Distribution created",
		"distribution_id", d.ID, "asset_id", d.AssetID, "kind", d.Kind, "source", d.Source.Kind,
		"gross", d.GrossAmount, "net", d.NetAmount)
	return d, nil
}

// resolveSource fixes the entitlement source, taking a snapshot when the
// caller supplied neither a snapshot nor a root. A supplied snapshot must have
// been taken of the distribution's asset.
func (e *Engine) resolveSource(ctx context.Context, req CreateRequest) (models.EntitlementSource, error) {
	switch {
	case req.SnapshotID != "" && req.MerkleRoot != "":
		return models.EntitlementSource{}, fmt.Errorf("%w: snapshot id and merkle root are mutually exclusive", ErrInvalidSource)

	case req.MerkleRoot != "":
		root, err := merkle.ParseHash(req.MerkleRoot)
		if err != nil {
			return models.EntitlementSource{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		return models.MerkleSource(root.String()), nil
	}

	snapshotID := req.SnapshotID
	if snapshotID == "" {
		id, err := e.ledger.CreateSnapshot(ctx, req.AssetID)
		if err != nil {
			return models.EntitlementSource{}, fmt.Errorf("%w: create snapshot: %v", ErrLedgerUnavailable, err)
		}
		snapshotID = id
	} else {
		if strings.ContainsRune(snapshotID, 0) {
			return models.EntitlementSource{}, fmt.Errorf("%w: snapshot id contains a NUL byte", ErrInvalidSource)
		}
		asset, err := e.ledger.SnapshotAsset(ctx, snapshotID)
		if err != nil {
			return models.EntitlementSource{}, fmt.Errorf("%w: snapshot %s: %v", ErrLedgerUnavailable, snapshotID, err)
		}
		if asset != req.AssetID {
			return models.EntitlementSource{}, fmt.Errorf("%w: snapshot %s was taken of %s, not %s",
				ErrInvalidSource, snapshotID, asset, req.AssetID)
		}
	}

	supply, err := e.ledger.TotalSupplyAt(ctx, snapshotID)
	if err != nil {
		return models.EntitlementSource{}, fmt.Errorf("%w: total supply of %s: %v", ErrLedgerUnavailable, snapshotID, err)
	}
	if supply == 0 {
		return models.EntitlementSource{}, fmt.Errorf("%w: %s", ErrEmptySnapshot, snapshotID)
	}
	return models.SnapshotSource(snapshotID), nil
}

// Activate escrows the gross amount into the distribution's own account, pays
// the locked-in fees out of it and moves the distribution to Active. Nothing
// is recorded unless every step succeeds; payment references make the retry of
// a partly paid activation safe.
//
// A Pending distribution whose expiry has passed can no longer be activated.
func (e *Engine) Activate(ctx context.Context, id int64) (*models.Distribution, error) {
	d, err := e.store.UpdateDistribution(ctx, id, func(d *models.Distribution) error {
		if d.Status != models.StatusPending {
			return fmt.Errorf("%w: status is %s", ErrAlreadyActivated, d.Status)
		}
		now := e.now().Unix()
		if d.Expired(now) {
			return fmt.Errorf("%w: %d expired at %d before activation", ErrDistributionNotActive, d.ID, d.ExpiresAt)
		}

		account := escrowAccount(d.ID)
		if err := e.payments.Escrow(ctx, account, d.FundingAsset, account, d.GrossAmount); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTransferFailed, account, err)
		}
		if fee := d.PlatformFee + d.MaintenanceFee; fee > 0 {
			ref := fmt.Sprintf("fee:%d", d.ID)
			if err := e.payments.Transfer(ctx, ref, d.FundingAsset, account, d.FeeReceiver, fee); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransferFailed, ref, err)
			}
		}
		d.Status = models.StatusActive
		d.ActivatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.fail("Activate", id, err)
	}

	e.metrics.Transition(string(d.Status))
	e.logger.Info("Distribution activated", "distribution_id", d.ID, "fees_paid", d.PlatformFee+d.MaintenanceFee)
	return d, nil
}

// Complete closes an Active distribution for new funding decisions.
// Whether claims remain open is governed by Options.ClaimsAfterCompletion.
func (e *Engine) Complete(ctx context.Context, id int64) (*models.Distribution, error) {
	d, err := e.store.UpdateDistribution(ctx, id, func(d *models.Distribution) error {
		if d.Status != models.StatusActive {
			return fmt.Errorf("%w: cannot complete a %s distribution", ErrInvalidTransition, d.Status)
		}
		d.Status = models.StatusCompleted
		d.ClosedAt = e.now().Unix()
		return nil
	})
	if err != nil {
		return nil, e.fail("Complete", id, err)
	}

	e.metrics.Transition(string(d.Status))
	e.logger.Info("Distribution completed", "distribution_id", d.ID, "total_claimed", d.TotalClaimed)
	return d, nil
}

// Cancel abandons a distribution nobody has claimed from yet.
func (e *Engine) Cancel(ctx context.Context, id int64) (*models.Distribution, error) {
	d, err := e.store.UpdateDistribution(ctx, id, func(d *models.Distribution) error {
		if d.Status != models.StatusActive && d.Status != models.StatusCompleted {
			return fmt.Errorf("%w: cannot cancel a %s distribution", ErrInvalidTransition, d.Status)
		}
		if d.TotalClaimed != 0 {
			return fmt.Errorf("%w: %d already claimed", ErrCancelNotEmpty, d.TotalClaimed)
		}
		d.Status = models.StatusCancelled
		d.ClosedAt = e.now().Unix()
		return nil
	})
	if err != nil {
		return nil, e.fail("Cancel", id, err)
	}

	e.metrics.Transition(string(d.Status))
	e.logger.Info("Distribution cancelled", "distribution_id", d.ID)
	return d, nil
}

// GetDistribution returns a distribution by id.
func (e *Engine) GetDistribution(ctx context.Context, id int64) (*models.Distribution, error) {
	d, err := e.store.GetDistribution(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrDistributionNotFound, id)
	}
	return d, err
}

// ListDistributions returns the distributions of an asset, newest first.
// An empty assetID lists all of them.
func (e *Engine) ListDistributions(ctx context.Context, assetID string) ([]*models.Distribution, error) {
	return e.store.ListDistributions(ctx, strings.TrimSpace(assetID))
}

// GetClaim returns the claim a beneficiary made against a distribution.
func (e *Engine) GetClaim(ctx context.Context, id int64, beneficiaryID string) (*models.ClaimRecord, error) {
	if _, err := e.GetDistribution(ctx, id); err != nil {
		return nil, err
	}
	c, err := e.store.GetClaim(ctx, id, beneficiaryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s on %d", ErrClaimNotFound, beneficiaryID, id)
	}
	return c, err
}

// ListClaims returns the claims of a distribution in claim order.
func (e *Engine) ListClaims(ctx context.Context, id int64) ([]*models.ClaimRecord, error) {
	if _, err := e.GetDistribution(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListClaims(ctx, id)
}

// FeeQuote is the fee breakdown a gross amount would get under the current policy.
type FeeQuote struct {
	calculator.Fees
	PlatformRate    uint32
	MaintenanceRate uint32
	FeeReceiver     string
}

// QuoteFees previews fee extraction without creating anything.
func (e *Engine) QuoteFees(gross uint64) (FeeQuote, error) {
	if err := validAmount(gross); err != nil {
		return FeeQuote{}, err
	}
	q := FeeQuote{
		PlatformRate:    e.fees.PlatformRate(),
		MaintenanceRate: e.fees.MaintenanceRate(),
		FeeReceiver:     e.fees.FeeReceiver(),
	}
	fees, err := calculator.ComputeNet(gross, q.PlatformRate, q.MaintenanceRate)
	if errors.Is(err, calculator.ErrInvalidRate) {
		return FeeQuote{}, fmt.Errorf("%w: %v", ErrFeePolicy, err)
	}
	if err != nil {
		return FeeQuote{}, err
	}
	q.Fees = fees
	return q, nil
}

// fail maps store errors to engine errors and logs by class.
func (e *Engine) fail(op string, id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		err = fmt.Errorf("%w: %d", ErrDistributionNotFound, id)
	}
	switch ClassOf(err) {
	case ClassArithmetic:
		e.logger.Error(op+" rejected", "distribution_id", id, "error", err)
	case ClassConflict, ClassDependency:
		e.logger.Warn(op+" rejected", "distribution_id", id, "error", err)
	case ClassUnknown:
		e.logger.Error(op+" failed", "distribution_id", id, "error", err)
	}
	return err
}

// escrowAccount is the ledger account holding a distribution's unpaid funds.
func escrowAccount(id int64) string {
	return fmt.Sprintf("escrow:%d", id)
}

// validID rejects identifiers the ledger cannot key unambiguously.
func validID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %s contains a NUL byte", ErrInvalidArgument, field)
	}
	return nil
}

func validAmount(amount uint64) error {
	if amount == 0 || amount > math.MaxInt64 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	return nil
}
