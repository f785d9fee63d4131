package calculator

import "fmt"

// ClaimForReconcile is the minimal claim information needed to audit a pool.
type ClaimForReconcile struct {
	BeneficiaryID string
	Amount        uint64
}

// PoolForReconcile is the minimal distribution information needed to audit a pool.
type PoolForReconcile struct {
	Net          uint64
	TotalClaimed uint64
	Recovered    bool
	Swept        uint64
}

// Reconciliation summarizes the accounting state of one distribution.
type Reconciliation struct {
	Net          uint64
	ClaimedSum   uint64 // Sum over claim records
	TotalClaimed uint64 // Running counter on the distribution
	Remaining    uint64 // Net - TotalClaimed
	Swept        uint64
	Claims       int
}

// Reconcile audits a distribution against its claim records.
//
// Checks:
// - each beneficiary appears at most once
// - the running counter equals the sum of the claim records
// - the counter never exceeds the net pool
// - after a sweep, claimed + swept equals the net pool exactly
func Reconcile(pool PoolForReconcile, claims []ClaimForReconcile) (Reconciliation, error) {
	seen := make(map[string]bool, len(claims))
	var sum uint64
	for _, c := range claims {
		if seen[c.BeneficiaryID] {
			return Reconciliation{}, fmt.Errorf("duplicate claim for %s", c.BeneficiaryID)
		}
		seen[c.BeneficiaryID] = true

		next := sum + c.Amount
		if next < sum {
			return Reconciliation{}, fmt.Errorf("claim sum overflows")
		}
		sum = next
	}

	if sum != pool.TotalClaimed {
		return Reconciliation{}, fmt.Errorf("claim records sum to %d, counter is %d", sum, pool.TotalClaimed)
	}
	if pool.TotalClaimed > pool.Net {
		return Reconciliation{}, fmt.Errorf("claimed %d exceeds net %d", pool.TotalClaimed, pool.Net)
	}
	if pool.Recovered && pool.TotalClaimed+pool.Swept != pool.Net {
		return Reconciliation{}, fmt.Errorf("claimed %d + swept %d != net %d", pool.TotalClaimed, pool.Swept, pool.Net)
	}

	return Reconciliation{
		Net:          pool.Net,
		ClaimedSum:   sum,
		TotalClaimed: pool.TotalClaimed,
		Remaining:    pool.Net - pool.TotalClaimed,
		Swept:        pool.Swept,
		Claims:       len(claims),
	}, nil
}
