// Package ledger is a pebble-backed balance book. It serves as the asset
// ledger the engine snapshots for pro-rata entitlements and as the payment
// rail that moves funding assets out of the escrow account.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond

	sep = "\x00"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrReferenceConflict = errors.New("transfer reference reused with different parameters")
)

// Book stores balances per (asset, holder).
//
// Key layout:
//
//	bal\x00<asset>\x00<holder>          current balance
//	snap\x00<id>\x00meta                asset and total supply at the snapshot
//	snap\x00<id>\x00bal\x00<holder>     balance at the snapshot
//	xfer\x00<reference>                 executed payment, for idempotent replays
//
// mu serializes every balance-changing write with snapshot creation, so a
// snapshot never observes half of a move.
type Book struct {
	db       *pebble.DB
	mu       sync.Mutex
	stopSync chan struct{}
	wg       sync.WaitGroup
}

// Open creates or opens a book at the given path.
// It starts a background goroutine that syncs the WAL periodically.
func Open(path string) (*Book, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MemTableSize: 8 << 20,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	b := &Book{
		db:       db,
		stopSync: make(chan struct{}),
	}
	b.startSyncLoop()

	return b, nil
}

// Close stops the sync goroutine and closes the database.
func (b *Book) Close() error {
	close(b.stopSync)
	b.wg.Wait()

	if err := b.db.LogData(nil, pebble.Sync); err != nil {
		return err
	}
	return b.db.Close()
}

// Balance returns the current balance of holder in asset.
func (b *Book) Balance(ctx context.Context, asset, holder string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.getUint(balanceKey(asset, holder))
}

// Mint credits holder with newly issued units of asset.
func (b *Book) Mint(ctx context.Context, asset, holder string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := balanceKey(asset, holder)
	current, err := b.getUint(key)
	if err != nil {
		return err
	}
	if current+amount < current {
		return fmt.Errorf("mint overflows balance of %s", holder)
	}
	return b.db.Set(key, encodeUint(current+amount), pebble.NoSync)
}

// Move transfers amount of asset between two holders.
func (b *Book) Move(ctx context.Context, asset, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch, err := b.moveBatch(asset, from, to, amount)
	if err != nil {
		return err
	}
	defer batch.Close()
	return batch.Commit(pebble.NoSync)
}

// moveBatch stages a debit and credit. Callers hold mu.
func (b *Book) moveBatch(asset, from, to string, amount uint64) (*pebble.Batch, error) {
	fromKey, toKey := balanceKey(asset, from), balanceKey(asset, to)

	fromBal, err := b.getUint(fromKey)
	if err != nil {
		return nil, err
	}
	if fromBal < amount {
		return nil, fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, from, fromBal, asset, amount)
	}

	batch := b.db.NewBatch()
	if from == to {
		return batch, nil
	}

	toBal, err := b.getUint(toKey)
	if err != nil {
		batch.Close()
		return nil, err
	}
	if err := batch.Set(fromKey, encodeUint(fromBal-amount), nil); err != nil {
		batch.Close()
		return nil, err
	}
	if err := batch.Set(toKey, encodeUint(toBal+amount), nil); err != nil {
		batch.Close()
		return nil, err
	}
	return batch, nil
}

func (b *Book) getUint(key []byte) (uint64, error) {
	value, closer, err := b.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, fmt.Errorf("corrupt value at %q", key)
	}
	return binary.BigEndian.Uint64(value), nil
}

// iteratePrefix calls fn for each key-value pair with the given prefix.
func (b *Book) iteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (b *Book) startSyncLoop() {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = b.db.LogData(nil, pebble.Sync)
			case <-b.stopSync:
				return
			}
		}
	}()
}

func balancePrefix(asset string) []byte {
	return []byte("bal" + sep + asset + sep)
}

func balanceKey(asset, holder string) []byte {
	return append(balancePrefix(asset), holder...)
}

func encodeUint(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Returns nil if prefix is all 0xFF (unbounded).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}
