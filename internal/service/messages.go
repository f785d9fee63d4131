package service

import (
	"github.com/mmynk/payouts/internal/calculator"
	"github.com/mmynk/payouts/internal/engine"
	"github.com/mmynk/payouts/internal/models"
)

// Amounts are encoded as decimal strings so 64-bit values survive JSON
// clients that parse numbers as doubles.

type Distribution struct {
	ID              int64  `json:"id,string"`
	AssetID         string `json:"asset_id"`
	FundingAsset    string `json:"funding_asset"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	Source          string `json:"source"`
	SnapshotID      string `json:"snapshot_id,omitempty"`
	MerkleRoot      string `json:"merkle_root,omitempty"`
	GrossAmount     uint64 `json:"gross_amount,string"`
	PlatformFee     uint64 `json:"platform_fee,string"`
	MaintenanceFee  uint64 `json:"maintenance_fee,string"`
	PlatformRate    uint32 `json:"platform_rate_bps"`
	MaintenanceRate uint32 `json:"maintenance_rate_bps"`
	FeeReceiver     string `json:"fee_receiver,omitempty"`
	NetAmount       uint64 `json:"net_amount,string"`
	TotalClaimed    uint64 `json:"total_claimed,string"`
	Remaining       uint64 `json:"remaining,string"`
	ClaimCount      int64  `json:"claim_count"`
	CreatedAt       int64  `json:"created_at"`
	ActivatedAt     int64  `json:"activated_at,omitempty"`
	ClosedAt        int64  `json:"closed_at,omitempty"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
	Recovered       bool   `json:"recovered"`
	RecoveredAmount uint64 `json:"recovered_amount,string"`
	RecoveredTo     string `json:"recovered_to,omitempty"`
	RecoveredAt     int64  `json:"recovered_at,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	Description     string `json:"description,omitempty"`
}

type Claim struct {
	DistributionID int64  `json:"distribution_id,string"`
	BeneficiaryID  string `json:"beneficiary_id"`
	Amount         uint64 `json:"amount,string"`
	ClaimedAt      int64  `json:"claimed_at"`
}

type CreateDistributionRequest struct {
	AssetID      string `json:"asset_id"`
	FundingAsset string `json:"funding_asset"`
	Kind         string `json:"kind"`
	GrossAmount  uint64 `json:"gross_amount,string"`
	SnapshotID   string `json:"snapshot_id,omitempty"`
	MerkleRoot   string `json:"merkle_root,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	Description  string `json:"description,omitempty"`
}

// DistributionRequest addresses one distribution.
type DistributionRequest struct {
	DistributionID int64 `json:"distribution_id,string"`
}

type DistributionResponse struct {
	Distribution *Distribution `json:"distribution"`
}

type ListDistributionsRequest struct {
	AssetID string `json:"asset_id,omitempty"`
}

type ListDistributionsResponse struct {
	Distributions []*Distribution `json:"distributions"`
}

type ClaimRequest struct {
	DistributionID int64    `json:"distribution_id,string"`
	BeneficiaryID  string   `json:"beneficiary_id"`
	Amount         uint64   `json:"amount,string"`
	Proof          []string `json:"proof,omitempty"`
}

type ClaimResponse struct {
	Claim *Claim `json:"claim"`
}

type GetClaimRequest struct {
	DistributionID int64  `json:"distribution_id,string"`
	BeneficiaryID  string `json:"beneficiary_id"`
}

type ListClaimsResponse struct {
	Claims []*Claim `json:"claims"`
}

type RecoverRequest struct {
	DistributionID int64  `json:"distribution_id,string"`
	Receiver       string `json:"receiver"`
}

type RecoverResponse struct {
	SweptAmount  uint64        `json:"swept_amount,string"`
	Distribution *Distribution `json:"distribution"`
}

type EntitlementRequest struct {
	DistributionID int64  `json:"distribution_id,string"`
	BeneficiaryID  string `json:"beneficiary_id"`
}

type EntitlementResponse struct {
	Amount uint64 `json:"amount,string"`
}

type QuoteFeesRequest struct {
	GrossAmount uint64 `json:"gross_amount,string"`
}

type QuoteFeesResponse struct {
	PlatformFee     uint64 `json:"platform_fee,string"`
	MaintenanceFee  uint64 `json:"maintenance_fee,string"`
	NetAmount       uint64 `json:"net_amount,string"`
	PlatformRate    uint32 `json:"platform_rate_bps"`
	MaintenanceRate uint32 `json:"maintenance_rate_bps"`
	FeeReceiver     string `json:"fee_receiver"`
}

type ReconcileResponse struct {
	NetAmount    uint64 `json:"net_amount,string"`
	ClaimedSum   uint64 `json:"claimed_sum,string"`
	TotalClaimed uint64 `json:"total_claimed,string"`
	Remaining    uint64 `json:"remaining,string"`
	Swept        uint64 `json:"swept,string"`
	Claims       int    `json:"claims"`
}

func toDistribution(d *models.Distribution) *Distribution {
	return &Distribution{
		ID:              d.ID,
		AssetID:         d.AssetID,
		FundingAsset:    d.FundingAsset,
		Kind:            string(d.Kind),
		Status:          string(d.Status),
		Source:          string(d.Source.Kind),
		SnapshotID:      d.Source.SnapshotID,
		MerkleRoot:      d.Source.MerkleRoot,
		GrossAmount:     d.GrossAmount,
		PlatformFee:     d.PlatformFee,
		MaintenanceFee:  d.MaintenanceFee,
		PlatformRate:    d.PlatformRate,
		MaintenanceRate: d.MaintenanceRate,
		FeeReceiver:     d.FeeReceiver,
		NetAmount:       d.NetAmount,
		TotalClaimed:    d.TotalClaimed,
		Remaining:       d.Remaining(),
		ClaimCount:      d.ClaimCount,
		CreatedAt:       d.CreatedAt,
		ActivatedAt:     d.ActivatedAt,
		ClosedAt:        d.ClosedAt,
		ExpiresAt:       d.ExpiresAt,
		Recovered:       d.Recovered,
		RecoveredAmount: d.RecoveredAmount,
		RecoveredTo:     d.RecoveredTo,
		RecoveredAt:     d.RecoveredAt,
		CreatedBy:       d.CreatedBy,
		Description:     d.Description,
	}
}

func toClaim(c *models.ClaimRecord) *Claim {
	return &Claim{
		DistributionID: c.DistributionID,
		BeneficiaryID:  c.BeneficiaryID,
		Amount:         c.Amount,
		ClaimedAt:      c.ClaimedAt,
	}
}

func toQuote(q engine.FeeQuote) *QuoteFeesResponse {
	return &QuoteFeesResponse{
		PlatformFee:     q.Platform,
		MaintenanceFee:  q.Maintenance,
		NetAmount:       q.Net,
		PlatformRate:    q.PlatformRate,
		MaintenanceRate: q.MaintenanceRate,
		FeeReceiver:     q.FeeReceiver,
	}
}

func toReconcile(r calculator.Reconciliation) *ReconcileResponse {
	return &ReconcileResponse{
		NetAmount:    r.Net,
		ClaimedSum:   r.ClaimedSum,
		TotalClaimed: r.TotalClaimed,
		Remaining:    r.Remaining,
		Swept:        r.Swept,
		Claims:       r.Claims,
	}
}
