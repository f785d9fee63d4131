package engine

import (
	"context"
	"fmt"

	"github.com/mmynk/payouts/internal/calculator"
	"github.com/mmynk/payouts/internal/merkle"
	"github.com/mmynk/payouts/internal/models"
)

// resolver computes how much a beneficiary may claim from a distribution.
type resolver interface {
	entitlement(ctx context.Context, d *models.Distribution, beneficiaryID string, requested uint64, proof []string) (uint64, error)
}

// resolverFor selects the strategy fixed by the distribution's source.
func (e *Engine) resolverFor(src models.EntitlementSource) (resolver, error) {
	switch src.Kind {
	case models.SourceSnapshot:
		return proRata{ledger: e.ledger}, nil
	case models.SourceMerkle:
		return allowlist{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSource, src.Kind)
}

// proRata entitles a holder to floor(net * balance / supply) at the snapshot.
type proRata struct {
	ledger AssetLedger
}

func (r proRata) entitlement(ctx context.Context, d *models.Distribution, beneficiaryID string, _ uint64, _ []string) (uint64, error) {
	snapshotID := d.Source.SnapshotID
	balance, err := r.ledger.BalanceOfAt(ctx, snapshotID, beneficiaryID)
	if err != nil {
		return 0, fmt.Errorf("%w: balance of %s at %s: %v", ErrLedgerUnavailable, beneficiaryID, snapshotID, err)
	}
	supply, err := r.ledger.TotalSupplyAt(ctx, snapshotID)
	if err != nil {
		return 0, fmt.Errorf("%w: total supply at %s: %v", ErrLedgerUnavailable, snapshotID, err)
	}

	share, err := calculator.ProRataShare(d.NetAmount, balance, supply)
	if err != nil {
		return 0, fmt.Errorf("%w: snapshot %s is inconsistent: %v", ErrLedgerUnavailable, snapshotID, err)
	}
	return share, nil
}

// allowlist entitles a beneficiary to exactly the amount its proof commits to.
type allowlist struct{}

func (allowlist) entitlement(_ context.Context, d *models.Distribution, beneficiaryID string, requested uint64, proof []string) (uint64, error) {
	root, err := merkle.ParseHash(d.Source.MerkleRoot)
	if err != nil {
		return 0, fmt.Errorf("%w: stored root: %v", ErrInvalidSource, err)
	}
	path, err := merkle.ParseProof(proof)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if !merkle.Verify(root, beneficiaryID, requested, path) {
		return 0, fmt.Errorf("%w: %s for %d", ErrInvalidProof, beneficiaryID, requested)
	}
	return requested, nil
}

// Entitlement reports a holder's pro-rata share of a snapshot distribution.
// Allowlist amounts are published with their proofs and are not derivable here.
func (e *Engine) Entitlement(ctx context.Context, id int64, beneficiaryID string) (uint64, error) {
	if beneficiaryID == "" {
		return 0, fmt.Errorf("%w: beneficiary id is required", ErrInvalidArgument)
	}
	d, err := e.GetDistribution(ctx, id)
	if err != nil {
		return 0, err
	}
	if d.Source.Kind != models.SourceSnapshot {
		return 0, fmt.Errorf("%w: distribution %d uses an allowlist", ErrInvalidSource, id)
	}
	return proRata{ledger: e.ledger}.entitlement(ctx, d, beneficiaryID, 0, nil)
}
