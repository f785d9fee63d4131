// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/payouts/internal/models"
)

var (
	// ErrNotFound is returned when a distribution or claim does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClaimExists is returned when a claim record already exists for the
	// (distribution, beneficiary) pair.
	ErrClaimExists = errors.New("claim already recorded")

	// ErrPoolExhausted is returned when a claim would push the running total
	// past the net pool.
	ErrPoolExhausted = errors.New("claim exceeds remaining pool")
)

// Store defines the persistence contract of the payout engine.
// Every mutating method runs in a single transaction and is durable before it
// returns. Callbacks run inside that transaction and must not call back into
// the Store.
type Store interface {
	// CreateDistribution persists a new distribution.
	// The d.ID field will be populated by the store.
	CreateDistribution(ctx context.Context, d *models.Distribution) error

	// GetDistribution retrieves a distribution by its ID.
	// Returns ErrNotFound if the distribution does not exist.
	GetDistribution(ctx context.Context, id int64) (*models.Distribution, error)

	// ListDistributions returns the distributions of an asset, newest first.
	// An empty assetID lists every distribution.
	ListDistributions(ctx context.Context, assetID string) ([]*models.Distribution, error)

	// UpdateDistribution loads the distribution, lets apply mutate its
	// lifecycle fields (status, timestamps, recovery) and writes them back.
	// If apply returns an error nothing is written.
	UpdateDistribution(ctx context.Context, id int64, apply func(d *models.Distribution) error) (*models.Distribution, error)

	// CreateClaim records a claim and adds its amount to the distribution's
	// running total as one atomic unit:
	//   1. check runs against the current distribution row
	//   2. the claim row is inserted (ErrClaimExists on conflict)
	//   3. the total is incremented with a bound check (ErrPoolExhausted)
	//   4. settle runs; an error rolls back steps 2 and 3
	CreateClaim(ctx context.Context, claim *models.ClaimRecord,
		check func(d *models.Distribution) error,
		settle func(d *models.Distribution) error,
	) (*models.Distribution, error)

	// GetClaim retrieves the claim for a (distribution, beneficiary) pair.
	// Returns ErrNotFound if the beneficiary has not claimed.
	GetClaim(ctx context.Context, distributionID int64, beneficiaryID string) (*models.ClaimRecord, error)

	// ListClaims returns every claim of a distribution in claim order.
	ListClaims(ctx context.Context, distributionID int64) ([]*models.ClaimRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
