package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Payer moves funding assets between accounts held in the book. Gross amounts
// are escrowed out of a single funding account into per-distribution escrow
// accounts, and every payout debits the escrow account it names.
type Payer struct {
	book    *Book
	funding string
}

// Payer returns a payment rail that escrows out of the funding account.
func (b *Book) Payer(funding string) *Payer {
	return &Payer{book: b, funding: funding}
}

// Escrow moves amount of asset from the funding account into account.
func (p *Payer) Escrow(ctx context.Context, reference, asset, account string, amount uint64) error {
	return p.Transfer(ctx, reference, asset, p.funding, account, amount)
}

// Transfer moves amount of asset from one account to another.
//
// reference identifies the payment. Replaying a reference with the same
// parameters is a no-op, so a caller that crashed after paying but before
// recording the payment can safely retry. Reusing a reference with different
// parameters fails with ErrReferenceConflict.
func (p *Payer) Transfer(ctx context.Context, reference, asset, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if reference == "" {
		return errors.New("transfer reference required")
	}

	b := p.book
	b.mu.Lock()
	defer b.mu.Unlock()

	record := encodeTransfer(asset, from, to, amount)
	key := transferKey(reference)

	existing, closer, err := b.db.Get(key)
	switch {
	case err == nil:
		same := bytes.Equal(existing, record)
		closer.Close()
		if !same {
			return fmt.Errorf("%w: %s", ErrReferenceConflict, reference)
		}
		return nil
	case !errors.Is(err, pebble.ErrNotFound):
		return err
	}

	batch, err := b.moveBatch(asset, from, to, amount)
	if err != nil {
		return err
	}
	defer batch.Close()

	if err := batch.Set(key, record, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func transferKey(reference string) []byte {
	return []byte("xfer" + sep + reference)
}

func encodeTransfer(asset, from, to string, amount uint64) []byte {
	buf := binary.BigEndian.AppendUint64(nil, amount)
	for _, s := range []string{asset, from} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return append(buf, to...)
}
