package calculator

import (
	"errors"
	"fmt"
)

// BasisPoints is the rate denominator: 500 bps = 5.00%.
const BasisPoints = 10000

var (
	ErrInvalidRate        = errors.New("fee rate must be between 0 and 10000 basis points")
	ErrFeesExceedGross    = errors.New("fees exceed gross amount")
	ErrZeroSupply         = errors.New("total supply is zero")
	ErrBalanceAboveSupply = errors.New("balance exceeds total supply")
)

// Fees is the result of fee extraction on a gross pool.
type Fees struct {
	Platform    uint64
	Maintenance uint64
	Net         uint64
}

// ComputeNet deducts platform and maintenance fees from gross.
// Each fee is floor(gross * rate / 10000), computed without overflow.
//
// Both rates are applied to the gross amount independently, so the result
// does not depend on the order of deduction.
func ComputeNet(gross uint64, platformRate, maintenanceRate uint32) (Fees, error) {
	if platformRate > BasisPoints || maintenanceRate > BasisPoints {
		return Fees{}, ErrInvalidRate
	}

	platform := mulDiv64(gross, uint64(platformRate), BasisPoints)
	maintenance := mulDiv64(gross, uint64(maintenanceRate), BasisPoints)

	// Two rates of up to 100% each can still sum past gross.
	if platform > gross || maintenance > gross-platform {
		return Fees{}, fmt.Errorf("%w: platform %d + maintenance %d > gross %d",
			ErrFeesExceedGross, platform, maintenance, gross)
	}

	return Fees{
		Platform:    platform,
		Maintenance: maintenance,
		Net:         gross - platform - maintenance,
	}, nil
}
