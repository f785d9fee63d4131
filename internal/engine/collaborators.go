package engine

import (
	"context"
	"sync"
)

// AssetLedger exposes point-in-time balances of a beneficiary pool.
// A returned snapshot id must identify an immutable view.
type AssetLedger interface {
	CreateSnapshot(ctx context.Context, assetID string) (string, error)
	SnapshotAsset(ctx context.Context, snapshotID string) (string, error)
	BalanceOfAt(ctx context.Context, snapshotID, beneficiaryID string) (uint64, error)
	TotalSupplyAt(ctx context.Context, snapshotID string) (uint64, error)
}

// Payments moves funding assets. A distribution's gross is escrowed into its
// own account at activation, and fees, claims and sweeps are paid from there.
// reference is deterministic per payment so implementations can deduplicate retries.
type Payments interface {
	// Escrow moves amount from the funding account into account.
	Escrow(ctx context.Context, reference, asset, account string, amount uint64) error
	Transfer(ctx context.Context, reference, asset, from, to string, amount uint64) error
}

// FeePolicy supplies the fee rates, in basis points, applied at creation.
type FeePolicy interface {
	PlatformRate() uint32
	MaintenanceRate() uint32
	FeeReceiver() string
}

// StaticFeePolicy is a FeePolicy whose rates can be changed at runtime.
// Changes only affect distributions created afterwards.
type StaticFeePolicy struct {
	mu          sync.RWMutex
	platform    uint32
	maintenance uint32
	receiver    string
}

// NewStaticFeePolicy returns a policy with the given rates and receiver.
func NewStaticFeePolicy(platformRate, maintenanceRate uint32, receiver string) *StaticFeePolicy {
	return &StaticFeePolicy{platform: platformRate, maintenance: maintenanceRate, receiver: receiver}
}

// SetRates replaces both rates.
func (p *StaticFeePolicy) SetRates(platformRate, maintenanceRate uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.platform, p.maintenance = platformRate, maintenanceRate
}

func (p *StaticFeePolicy) PlatformRate() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.platform
}

func (p *StaticFeePolicy) MaintenanceRate() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maintenance
}

func (p *StaticFeePolicy) FeeReceiver() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.receiver
}
