// Package models defines the core domain records of the payout engine.
//
// # Records
//
//   - Distribution: one funding event (rent, dividend or bonus) paid out to the
//     holders of a tokenized asset
//   - ClaimRecord: a beneficiary's single payout against a distribution
//   - EntitlementSource: how entitlements are resolved, either pro-rata from a
//     balance snapshot or from a published Merkle allowlist root
//
// # Amounts
//
// All amounts are integers in the smallest unit of the funding asset. They are
// held as uint64 but bounded by math.MaxInt64 so they fit SQLite INTEGER
// columns without loss.
//
// # Relationships
//
// Records reference each other by ID, never by pointer. A ClaimRecord is keyed
// by (DistributionID, BeneficiaryID) and is never deleted once committed.
package models
