// Copyright © 2024-2026 Jose Cantu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package besthit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

func row(sample, subject string, pident, evalue, bitscore float64, lineage string) taxdb.AnnotatedHit {
	return taxdb.AnnotatedHit{
		Hit: hits.Hit{Query: sample, Subject: subject, Pident: pident,
			Qlen: 400, Qcovhsp: 95, AlnLen: 380, Evalue: evalue,
			Bitscore: bitscore, Stitle: subject + " title"},
		Lineage: lineage,
	}
}

func TestResolveBitscoreBreaksEvalueTie(t *testing.T) {
	lineage := "d__Bacteria; g__Lactobacillus"
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 99.0, 1e-100, 180, lineage),
		row("s1", "A2", 99.0, 1e-100, 200, lineage),
	}
	best, err := Resolve(group, DefaultMinPident)
	if err != nil {
		t.Fatal(err)
	}
	if best.Subject != "A2" {
		t.Errorf("best = %s, want A2 (higher bitscore on tied e-value)", best.Subject)
	}
}

func TestResolveEvalueBeforeBitscore(t *testing.T) {
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 99.0, 1e-120, 150, "d__Bacteria"),
		row("s1", "A2", 99.0, 1e-100, 500, "d__Bacteria"),
	}
	best, _ := Resolve(group, DefaultMinPident)
	if best.Subject != "A1" {
		t.Errorf("best = %s, want A1 (lower e-value wins before bitscore)", best.Subject)
	}
}

func TestResolveDeeperTaxonomyWins(t *testing.T) {
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 99.0, 1e-100, 500, "d__Bacteria; p__Firmicutes"),
		row("s1", "A2", 99.0, 1e-100, 400, "d__Bacteria; p__Firmicutes; c__Bacilli; o__Lactobacillales; f__Lactobacillaceae; g__Lactobacillus; s__Lactobacillus gasseri"),
	}
	best, _ := Resolve(group, DefaultMinPident)
	if best.Subject != "A2" {
		t.Errorf("best = %s, want A2 (deeper taxonomy beats bitscore)", best.Subject)
	}
}

func TestResolveIdentityPruning(t *testing.T) {
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 92.0, 1e-150, 900, "d__Bacteria"),
		row("s1", "A2", 98.0, 1e-90, 300, "d__Bacteria"),
	}
	best, _ := Resolve(group, DefaultMinPident)
	if best.Subject != "A2" {
		t.Errorf("best = %s, want A2 (92%% row pruned despite better scores)", best.Subject)
	}
}

func TestResolveFallbackKeepsSample(t *testing.T) {
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 85.0, 1e-40, 100, "d__Bacteria"),
		row("s1", "A2", 90.0, 1e-60, 200, "d__Bacteria"),
	}
	best, err := Resolve(group, DefaultMinPident)
	if err != nil {
		t.Fatal(err)
	}
	if best.Subject != "A2" {
		t.Errorf("best = %s, want A2 (fallback resolves among all rows)", best.Subject)
	}
}

func TestResolveEmpty(t *testing.T) {
	if _, err := Resolve(nil, DefaultMinPident); err != ErrNoHits {
		t.Errorf("want ErrNoHits, got %v", err)
	}
}

func TestResolveNaNNeverWins(t *testing.T) {
	group := []taxdb.AnnotatedHit{
		row("s1", "A1", 98.0, math.NaN(), 500, "d__Bacteria"),
		row("s1", "A2", 98.0, 1e-10, 100, "d__Bacteria"),
	}
	best, _ := Resolve(group, DefaultMinPident)
	if best.Subject != "A2" {
		t.Errorf("best = %s, want A2 (NaN e-value sorts last)", best.Subject)
	}
}

func TestResolvePermutationIndependent(t *testing.T) {
	lineage := "d__Bacteria; g__Lactobacillus"
	group := []taxdb.AnnotatedHit{
		row("s1", "A3", 99.0, 1e-100, 200, lineage),
		row("s1", "A1", 99.0, 1e-100, 200, lineage),
		row("s1", "A2", 99.0, 1e-100, 200, lineage),
		row("s1", "B1", 98.0, 1e-100, 200, lineage),
	}
	want, err := Resolve(group, DefaultMinPident)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := make([]taxdb.AnnotatedHit, len(group))
		copy(shuffled, group)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got, err := Resolve(shuffled, DefaultMinPident)
		if err != nil {
			t.Fatal(err)
		}
		if got.Subject != want.Subject {
			t.Fatalf("permutation %d resolved %s, first run resolved %s",
				i, got.Subject, want.Subject)
		}
	}
}

func TestResolveAll(t *testing.T) {
	rows := []taxdb.AnnotatedHit{
		row("sample10", "A1", 99.0, 1e-100, 500, "d__Bacteria"),
		row("sample2", "B1", 98.0, 1e-90, 400, "d__Bacteria"),
		row("sample2", "B2", 99.5, 1e-110, 600, "d__Bacteria"),
		row("sample1", "C1", 80.0, 1e-20, 100, "d__Bacteria"),
	}
	best, err := ResolveAll(rows, DefaultMinPident, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(best) != 3 {
		t.Fatalf("ResolveAll returned %d rows, want 3", len(best))
	}
	// natural sort: sample1, sample2, sample10
	if best[0].Query != "sample1" || best[1].Query != "sample2" || best[2].Query != "sample10" {
		t.Errorf("sample order = %s, %s, %s", best[0].Query, best[1].Query, best[2].Query)
	}
	if best[1].Subject != "B2" {
		t.Errorf("sample2 best = %s, want B2", best[1].Subject)
	}
	// sample1 only has a sub-threshold row, the fallback must keep it
	if best[0].Subject != "C1" {
		t.Errorf("sample1 best = %s, want C1", best[0].Subject)
	}
}

func TestResolveAllNormalized(t *testing.T) {
	normalize, err := hits.Normalizer("strip_suffix")
	if err != nil {
		t.Fatal(err)
	}
	rows := []taxdb.AnnotatedHit{
		row("ABC_20240101_A01_trimmed", "A1", 98.0, 1e-90, 400, "d__Bacteria"),
		row("ABC_20240102_B07_trimmed", "A2", 99.0, 1e-100, 500, "d__Bacteria"),
	}
	best, err := ResolveAll(rows, DefaultMinPident, normalize)
	if err != nil {
		t.Fatal(err)
	}
	if len(best) != 1 {
		t.Fatalf("ResolveAll returned %d rows, want 1 after normalization", len(best))
	}
	if best[0].Query != "ABC" {
		t.Errorf("normalized sample = %q, want ABC", best[0].Query)
	}
	if best[0].Subject != "A2" {
		t.Errorf("best = %s, want A2", best[0].Subject)
	}
}

func TestResolveAllEmpty(t *testing.T) {
	if _, err := ResolveAll(nil, DefaultMinPident, nil); err != ErrNoHits {
		t.Errorf("want ErrNoHits, got %v", err)
	}
}
