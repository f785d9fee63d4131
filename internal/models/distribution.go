package models

import "fmt"

// Kind is the business reason for a distribution.
type Kind string

const (
	KindDividend Kind = "dividend"
	KindRent     Kind = "rent"
	KindBonus    Kind = "bonus"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDividend, KindRent, KindBonus:
		return true
	}
	return false
}

// Status is the lifecycle state of a distribution.
//
//	Pending -> Active -> Completed
//	              \          \
//	               +----------+--> Cancelled (only while nothing is claimed)
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SourceKind selects the entitlement resolution strategy.
type SourceKind string

const (
	SourceSnapshot SourceKind = "snapshot"
	SourceMerkle   SourceKind = "merkle"
)

// EntitlementSource is fixed when a distribution is created and never changes.
// Exactly one of SnapshotID or MerkleRoot is set, matching Kind.
type EntitlementSource struct {
	Kind SourceKind

	// SnapshotID is the opaque balance snapshot handle (pro-rata mode).
	SnapshotID string

	// MerkleRoot is the hex-encoded allowlist root (Merkle mode).
	MerkleRoot string
}

// SnapshotSource returns a pro-rata entitlement source.
func SnapshotSource(snapshotID string) EntitlementSource {
	return EntitlementSource{Kind: SourceSnapshot, SnapshotID: snapshotID}
}

// MerkleSource returns an allowlist entitlement source.
func MerkleSource(root string) EntitlementSource {
	return EntitlementSource{Kind: SourceMerkle, MerkleRoot: root}
}

// Validate checks that exactly the field matching Kind is populated.
func (s EntitlementSource) Validate() error {
	switch s.Kind {
	case SourceSnapshot:
		if s.SnapshotID == "" || s.MerkleRoot != "" {
			return fmt.Errorf("snapshot source requires only a snapshot id")
		}
	case SourceMerkle:
		if s.MerkleRoot == "" || s.SnapshotID != "" {
			return fmt.Errorf("merkle source requires only a root")
		}
	default:
		return fmt.Errorf("unknown entitlement source %q", s.Kind)
	}
	return nil
}

// Distribution is one funding event owed to the holders of an asset.
type Distribution struct {
	// ID is assigned by the store, strictly increasing.
	ID int64

	// AssetID identifies the beneficiary pool (property or token).
	AssetID string

	// FundingAsset identifies the currency paid out.
	FundingAsset string

	Kind   Kind
	Status Status
	Source EntitlementSource

	// GrossAmount is the escrowed pool before fees.
	GrossAmount uint64

	// Fees are computed once at creation and locked in together with the
	// rates (basis points) and receiver they were computed from.
	PlatformFee     uint64
	MaintenanceFee  uint64
	PlatformRate    uint32
	MaintenanceRate uint32
	FeeReceiver     string

	// NetAmount = GrossAmount - PlatformFee - MaintenanceFee.
	NetAmount uint64

	// TotalClaimed never exceeds NetAmount.
	TotalClaimed uint64
	ClaimCount   int64

	// Unix timestamps; ExpiresAt 0 means the distribution never expires.
	CreatedAt   int64
	ActivatedAt int64
	ClosedAt    int64
	ExpiresAt   int64

	// Recovered is the one-shot sweep flag. It is set even when the swept
	// remainder is zero.
	Recovered       bool
	RecoveredAmount uint64
	RecoveredTo     string
	RecoveredAt     int64

	// CreatedBy is the principal that created the distribution.
	CreatedBy string

	Description string
}

// Remaining is the part of the net pool not yet claimed.
func (d *Distribution) Remaining() uint64 {
	return d.NetAmount - d.TotalClaimed
}

// Expired reports whether the distribution is past its expiry at now (unix seconds).
func (d *Distribution) Expired(now int64) bool {
	return d.ExpiresAt != 0 && now > d.ExpiresAt
}

// Closed reports whether the distribution reached a terminal status.
func (d *Distribution) Closed() bool {
	return d.Status == StatusCompleted || d.Status == StatusCancelled
}
