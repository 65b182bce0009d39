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

// Package besthit collapses an annotated hit table to one representative
// row per sample. Rows below the species-level identity threshold are
// pruned per sample, with a per-sample fallback to the unpruned rows so
// no sample ever disappears from the output, and the winner is chosen by
// a fixed total order, so the result does not depend on input row order.
package besthit

import (
	stderrors "errors"
	"math"

	"github.com/shenwei356/natsort"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

// ErrNoHits is returned when there are no rows to resolve.
var ErrNoHits = stderrors.New("no hits to resolve")

// DefaultMinPident is the identity a hit needs to count as species-grade.
const DefaultMinPident = 97.0

// floatAsc orders ascending, NaN after every number.
// The second value reports a tie, telling the caller to keep comparing.
func floatAsc(a, b float64) (less, tie bool) {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return false, true
	case an:
		return false, false
	case bn:
		return true, false
	case a == b:
		return false, true
	}
	return a < b, false
}

// floatDesc orders descending, NaN after every number.
func floatDesc(a, b float64) (less, tie bool) {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return false, true
	case an:
		return false, false
	case bn:
		return true, false
	case a == b:
		return false, true
	}
	return a > b, false
}

// better reports whether a should be preferred over b: lowest e-value,
// then deepest taxonomy, then highest bitscore. The remaining fields only
// break full ties, so any permutation of equal-scoring distinct rows
// resolves to the same winner.
func better(a, b *taxdb.AnnotatedHit) bool {
	if less, tie := floatAsc(a.Evalue, b.Evalue); !tie {
		return less
	}
	da, db := taxdb.Depth(a.Lineage), taxdb.Depth(b.Lineage)
	if da != db {
		return da > db
	}
	if less, tie := floatDesc(a.Bitscore, b.Bitscore); !tie {
		return less
	}
	if less, tie := floatDesc(a.Pident, b.Pident); !tie {
		return less
	}
	if less, tie := floatDesc(a.Qcovhsp, b.Qcovhsp); !tie {
		return less
	}
	if a.Subject != b.Subject {
		return a.Subject < b.Subject
	}
	return a.Stitle < b.Stitle
}

// Resolve picks the representative row of one sample's hits. Rows with
// pident below minPident are pruned first; coverage is not re-checked
// here, the search stage already enforced it. When every row fails the
// pruning, the whole group is used instead, a low-identity answer still
// being more useful than a silently dropped sample.
func Resolve(group []taxdb.AnnotatedHit, minPident float64) (taxdb.AnnotatedHit, error) {
	if len(group) == 0 {
		return taxdb.AnnotatedHit{}, ErrNoHits
	}

	pool := make([]taxdb.AnnotatedHit, 0, len(group))
	for i := range group {
		if group[i].Pident >= minPident {
			pool = append(pool, group[i])
		}
	}
	if len(pool) == 0 {
		pool = group
	}

	best := 0
	for i := 1; i < len(pool); i++ {
		if better(&pool[i], &pool[best]) {
			best = i
		}
	}
	return pool[best], nil
}

// ResolveAll groups rows by sample and resolves each group, returning
// one row per sample in natural sort order (sample2 before sample10).
// A non-nil normalize is applied to the sample IDs before grouping, so
// technical replicates collapse into one sample.
func ResolveAll(rows []taxdb.AnnotatedHit, minPident float64, normalize hits.NormalizeFunc) ([]taxdb.AnnotatedHit, error) {
	if len(rows) == 0 {
		return nil, ErrNoHits
	}

	groups := make(map[string][]taxdb.AnnotatedHit, 64)
	for i := range rows {
		row := rows[i]
		if normalize != nil {
			row.Query = normalize(row.Query)
		}
		groups[row.Query] = append(groups[row.Query], row)
	}

	samples := make([]string, 0, len(groups))
	for sample := range groups {
		samples = append(samples, sample)
	}
	natsort.Sort(samples)

	best := make([]taxdb.AnnotatedHit, 0, len(samples))
	for _, sample := range samples {
		row, err := Resolve(groups[sample], minPident)
		if err != nil {
			return nil, err
		}
		best = append(best, row)
	}
	return best, nil
}
