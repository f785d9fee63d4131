package merkle

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	ErrEmptyAllowlist       = errors.New("allowlist is empty")
	ErrDuplicateBeneficiary = errors.New("beneficiary listed more than once")
	ErrUnknownBeneficiary   = errors.New("beneficiary not in allowlist")
	ErrTotalOverflow        = errors.New("allowlist total overflows uint64")
)

// Entry is one allowlist allocation.
type Entry struct {
	BeneficiaryID string
	Amount        uint64
}

// Tree is a built allowlist. levels[0] holds the leaves in entry order.
type Tree struct {
	levels  [][]Hash
	index   map[string]int
	entries []Entry
	total   uint64
}

// Build hashes the entries into a tree. An odd node at the end of a level is
// carried up unchanged.
func Build(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyAllowlist
	}

	index := make(map[string]int, len(entries))
	leaves := make([]Hash, len(entries))
	normalized := make([]Entry, len(entries))
	var total, carry uint64
	for i, e := range entries {
		id := strings.TrimSpace(e.BeneficiaryID)
		if id == "" {
			return nil, fmt.Errorf("entry %d: empty beneficiary id", i)
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBeneficiary, id)
		}
		index[id] = i
		normalized[i] = Entry{BeneficiaryID: id, Amount: e.Amount}
		leaves[i] = LeafHash(id, e.Amount)
		if total, carry = bits.Add64(total, e.Amount, 0); carry != 0 {
			return nil, fmt.Errorf("%w: at entry %d (%s)", ErrTotalOverflow, i, id)
		}
	}

	levels := [][]Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, NodeHash(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels, index: index, entries: normalized, total: total}, nil
}

// Root returns the published commitment.
func (t *Tree) Root() Hash {
	return t.levels[len(t.levels)-1][0]
}

// Total is the sum of all allocations. Build guarantees it does not overflow.
func (t *Tree) Total() uint64 {
	return t.total
}

// Entries returns the allocations in build order.
func (t *Tree) Entries() []Entry {
	return t.entries
}

// Proof returns the allocated amount and sibling path for a beneficiary.
func (t *Tree) Proof(beneficiaryID string) (uint64, []Hash, error) {
	idx, ok := t.index[strings.TrimSpace(beneficiaryID)]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownBeneficiary, beneficiaryID)
	}
	amount := t.entries[idx].Amount

	var proof []Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return amount, proof, nil
}
