package main

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/mmynk/payouts/internal/merkle"
)

func TestParseAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"with header", "beneficiary,amount\nalice,50\nbob,30\n", 2, false},
		{"without header", "alice,50\n", 1, false},
		{"comments and spaces", "# March bonus\nalice, 50\n bob,30\n", 2, false},
		{"bad amount", "alice,50\nbob,lots\n", 0, true},
		{"zero amount", "alice,0\n", 0, true},
		{"missing column", "alice\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseAllowlist(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d entries", len(entries))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestAllowlistTotalOverflow(t *testing.T) {
	limit := strconv.FormatUint(math.MaxInt64, 10)
	entries, err := parseAllowlist(strings.NewReader("a," + limit + "\nb," + limit + "\nc," + limit + "\n"))
	if err != nil {
		t.Fatalf("parseAllowlist failed: %v", err)
	}
	if _, err := merkle.Build(entries); !errors.Is(err, merkle.ErrTotalOverflow) {
		t.Errorf("Build error = %v, want ErrTotalOverflow", err)
	}
}

func TestProjectProofsVerify(t *testing.T) {
	entries, err := parseAllowlist(strings.NewReader("alice,50\nbob,30\ncarol,20\n"))
	if err != nil {
		t.Fatalf("parseAllowlist failed: %v", err)
	}
	tree, err := merkle.Build(entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := project(tree)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}
	if out.Total != "100" || out.Count != 3 {
		t.Errorf("Total = %s Count = %d", out.Total, out.Count)
	}

	root, err := merkle.ParseHash(out.Root)
	if err != nil {
		t.Fatalf("ParseHash(root) failed: %v", err)
	}
	for id, item := range out.Proofs {
		amount, _ := strconv.ParseUint(item.Amount, 10, 64)
		proof, err := merkle.ParseProof(item.Proof)
		if err != nil {
			t.Fatalf("ParseProof(%s) failed: %v", id, err)
		}
		if !merkle.Verify(root, id, amount, proof) {
			t.Errorf("published proof for %s does not verify", id)
		}
	}
}
