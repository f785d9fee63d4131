package calculator

import (
	"fmt"
	"math/bits"
)

// ProRataShare computes a holder's share of a net pool from snapshot balances:
//
//	share = floor(net * balance / totalSupply)
//
// A zero balance yields a zero share. Because every share is floored, the sum
// of all shares never exceeds net; the shortfall is left in the pool as dust.
func ProRataShare(net, balance, totalSupply uint64) (uint64, error) {
	if totalSupply == 0 {
		return 0, ErrZeroSupply
	}
	if balance > totalSupply {
		return 0, fmt.Errorf("%w: %d > %d", ErrBalanceAboveSupply, balance, totalSupply)
	}
	if balance == 0 || net == 0 {
		return 0, nil
	}
	return mulDiv64(net, balance, totalSupply), nil
}

// mulDiv64 computes (a * b) / c with a 128-bit intermediate product.
// Callers guarantee c != 0 and a*b/c < 2^64 (b <= c in every use here).
func mulDiv64(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi == 0 {
		return lo / c
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo
}
