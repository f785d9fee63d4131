// Package merkle verifies and builds allowlist proofs for Merkle-mode distributions.
//
// Leaves commit to (beneficiaryID, amount):
//
//	leaf = keccak256(0x00 || uint32be(len(id)) || id || uint64be(amount))
//
// Interior nodes hash their two children in sorted order:
//
//	node = keccak256(0x01 || min(a, b) || max(a, b))
//
// The domain prefixes keep a leaf from being replayed as an interior node.
// Sorting means a proof is just the list of siblings, without positions.
package merkle

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// HashSize is the length of a keccak256 digest.
const HashSize = 32

var ErrMalformedHash = errors.New("malformed hash")

// Hash is a keccak256 digest.
type Hash [HashSize]byte

// String returns the 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash decodes a hex digest with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedHash, len(raw), HashSize)
	}
	copy(h[:], raw)
	return h, nil
}

// ParseProof decodes a list of hex digests.
func ParseProof(items []string) ([]Hash, error) {
	proof := make([]Hash, len(items))
	for i, item := range items {
		h, err := ParseHash(item)
		if err != nil {
			return nil, fmt.Errorf("proof[%d]: %w", i, err)
		}
		proof[i] = h
	}
	return proof, nil
}

// FormatProof encodes a proof as 0x-prefixed hex digests.
func FormatProof(proof []Hash) []string {
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = h.String()
	}
	return out
}

// LeafHash commits to a beneficiary's allocation.
func LeafHash(beneficiaryID string, amount uint64) Hash {
	var buf []byte
	buf = append(buf, leafPrefix)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(beneficiaryID)))
	buf = append(buf, beneficiaryID...)
	buf = binary.BigEndian.AppendUint64(buf, amount)
	return keccak(buf)
}

// NodeHash combines two children in sorted order.
func NodeHash(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	buf := make([]byte, 0, 1+2*HashSize)
	buf = append(buf, nodePrefix)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return keccak(buf)
}

// Verify folds proof over the leaf for (beneficiaryID, amount) and compares the
// result with root. Any mismatch rejects the whole proof.
func Verify(root Hash, beneficiaryID string, amount uint64, proof []Hash) bool {
	computed := LeafHash(beneficiaryID, amount)
	for _, sibling := range proof {
		computed = NodeHash(computed, sibling)
	}
	return computed == root
}

func keccak(data []byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	d.Sum(h[:0])
	return h
}
