// Command allowlist builds the Merkle root and per-beneficiary proofs for an
// allowlist distribution from a beneficiary,amount CSV.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mmynk/payouts/internal/merkle"
)

func main() {
	var (
		in     = flag.String("in", "", "CSV file of beneficiary,amount rows (default stdin)")
		pretty = flag.Bool("pretty", true, "Pretty-print JSON output")
	)
	flag.Parse()

	r := io.Reader(os.Stdin)
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			log.Fatalf("open allowlist: %v", err)
		}
		defer f.Close()
		r = f
	}

	entries, err := parseAllowlist(r)
	if err != nil {
		log.Fatalf("parse allowlist: %v", err)
	}
	tree, err := merkle.Build(entries)
	if err != nil {
		log.Fatalf("build tree: %v", err)
	}

	out, err := project(tree)
	if err != nil {
		log.Fatalf("build proofs: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode failed: %v", err)
	}
}

type proofItem struct {
	Amount string   `json:"amount"`
	Proof  []string `json:"proof"`
}

type allowlistOutput struct {
	Root   string               `json:"root"`
	Total  string               `json:"total"`
	Count  int                  `json:"count"`
	Proofs map[string]proofItem `json:"proofs"`
}

// parseAllowlist reads beneficiary,amount rows. A first row whose amount is
// not a number is treated as a header.
func parseAllowlist(r io.Reader) ([]merkle.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var entries []merkle.Entry
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		amount, err := strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 63)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid amount %q", line, rec[1])
		}
		if amount == 0 {
			return nil, fmt.Errorf("line %d: amount must be positive", line)
		}
		entries = append(entries, merkle.Entry{BeneficiaryID: rec[0], Amount: amount})
	}
	return entries, nil
}

func project(tree *merkle.Tree) (*allowlistOutput, error) {
	out := &allowlistOutput{
		Root:   tree.Root().String(),
		Total:  strconv.FormatUint(tree.Total(), 10),
		Proofs: make(map[string]proofItem),
	}
	for _, e := range tree.Entries() {
		amount, proof, err := tree.Proof(e.BeneficiaryID)
		if err != nil {
			return nil, err
		}
		out.Proofs[e.BeneficiaryID] = proofItem{
			Amount: strconv.FormatUint(amount, 10),
			Proof:  merkle.FormatProof(proof),
		}
	}
	out.Count = len(out.Proofs)
	return out, nil
}
