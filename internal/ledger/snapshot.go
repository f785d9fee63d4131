package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

// CreateSnapshot freezes the balances and total supply of asset.
// The copy is written as one batch while balance writes are blocked, so the
// snapshot is a consistent point-in-time view. It is never modified afterwards.
func (b *Book) CreateSnapshot(ctx context.Context, asset string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	batch := b.db.NewBatch()
	defer batch.Close()

	prefix := balancePrefix(asset)
	var supply uint64
	err := b.iteratePrefix(prefix, func(key, value []byte) error {
		bal := binary.BigEndian.Uint64(value)
		if bal == 0 {
			return nil
		}
		if supply+bal < supply {
			return fmt.Errorf("total supply of %s overflows", asset)
		}
		supply += bal
		holder := string(key[len(prefix):])
		return batch.Set(snapshotBalanceKey(id, holder), encodeUint(bal), nil)
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy balances: %w", err)
	}

	meta := binary.BigEndian.AppendUint64(nil, supply)
	meta = append(meta, asset...)
	if err := batch.Set(snapshotMetaKey(id), meta, nil); err != nil {
		return "", err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return id, nil
}

// SnapshotAsset returns the asset a snapshot was taken of.
func (b *Book) SnapshotAsset(ctx context.Context, snapshotID string) (string, error) {
	_, asset, err := b.snapshotMeta(ctx, snapshotID)
	return asset, err
}

// BalanceOfAt returns holder's balance as of the snapshot.
// Holders absent from the snapshot hold zero.
func (b *Book) BalanceOfAt(ctx context.Context, snapshotID, holder string) (uint64, error) {
	if _, _, err := b.snapshotMeta(ctx, snapshotID); err != nil {
		return 0, err
	}
	return b.getUint(snapshotBalanceKey(snapshotID, holder))
}

// TotalSupplyAt returns the asset's total supply as of the snapshot.
func (b *Book) TotalSupplyAt(ctx context.Context, snapshotID string) (uint64, error) {
	supply, _, err := b.snapshotMeta(ctx, snapshotID)
	return supply, err
}

func (b *Book) snapshotMeta(ctx context.Context, snapshotID string) (uint64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	value, closer, err := b.db.Get(snapshotMetaKey(snapshotID))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return 0, "", err
	}
	defer closer.Close()

	if len(value) < 8 {
		return 0, "", fmt.Errorf("corrupt snapshot metadata for %s", snapshotID)
	}
	return binary.BigEndian.Uint64(value[:8]), string(value[8:]), nil
}

func snapshotMetaKey(id string) []byte {
	return []byte("snap" + sep + id + sep + "meta")
}

func snapshotBalanceKey(id, holder string) []byte {
	return []byte("snap" + sep + id + sep + "bal" + sep + holder)
}
