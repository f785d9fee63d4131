package models

// ClaimRecord is a beneficiary's payout against a distribution.
// At most one exists per (DistributionID, BeneficiaryID); it is immutable once committed.
type ClaimRecord struct {
	DistributionID int64

	// BeneficiaryID is the holder address or identity that received the funds.
	BeneficiaryID string

	// Amount is the paid amount. No partial re-claim, no decrease.
	Amount uint64

	// ClaimedAt is the Unix timestamp when the claim was committed.
	ClaimedAt int64
}
