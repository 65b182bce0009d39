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

// Package hits defines the canonical 9-column alignment hit table shared by
// every stage of the pipeline: the search backends write it, the parser
// reads it back, and the filtering/collapsing steps all consume the same
// Hit struct. Keeping one schema definition here prevents the column order
// from drifting between stages.
package hits

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Columns is the canonical column order of an alignment hit table.
// It equals the BLAST+ custom output format below, and both blastn and
// vsearch results are normalized to it.
var Columns = []string{
	"qseqid",   // query (sample) identifier
	"sseqid",   // subject accession
	"pident",   // percent identity, 0-100
	"qlen",     // query length
	"qcovhsp",  // query coverage per HSP, 0-100
	"length",   // alignment length
	"evalue",   // expect value
	"bitscore", // bit score
	"stitle",   // subject title
}

// NumColumns is the expected field count of a data row.
var NumColumns = len(Columns)

// Header is the canonical tab-separated header line, without a newline.
var Header = strings.Join(Columns, "\t")

// OutFmt is the blastn -outfmt specification that produces this table.
const OutFmt = "6 qseqid sseqid pident qlen qcovhsp length evalue bitscore stitle"

// Hit is one row of an alignment hit table.
//
// The float columns are NaN when the source field failed numeric coercion;
// the int columns are 0 in that case. A NaN percent identity or coverage
// never passes a threshold comparison.
type Hit struct {
	Query    string
	Subject  string
	Pident   float64
	Qlen     int
	Qcovhsp  float64
	AlnLen   int
	Evalue   float64
	Bitscore float64
	Stitle   string
}

// Thresholds are the report-time acceptance criteria, decoupled from the
// looser floors that may have been used at search time.
type Thresholds struct {
	MinPident float64
	MinQcov   float64
}

// DefaultThresholds are the conventional 16S report criteria.
var DefaultThresholds = Thresholds{MinPident: 97, MinQcov: 80}

// Pass reports whether the hit satisfies both report thresholds.
// NaN values fail.
func (h *Hit) Pass(th Thresholds) bool {
	return h.Pident >= th.MinPident && h.Qcovhsp >= th.MinQcov
}

// Filter returns the hits passing the report thresholds, preserving input
// order. The result is never nil.
func Filter(hs []Hit, th Thresholds) []Hit {
	passed := make([]Hit, 0, len(hs))
	for i := range hs {
		if hs[i].Pass(th) {
			passed = append(passed, hs[i])
		}
	}
	return passed
}

// Best returns the hit with the highest bit score, or nil for an empty
// table. The scan is explicit rather than trusting the table to be
// pre-sorted by score; vsearch does not order its output the way blastn
// does. A NaN bit score ranks below any number.
func Best(hs []Hit) *Hit {
	var best *Hit
	for i := range hs {
		h := &hs[i]
		if best == nil || bitscoreLess(best, h) {
			best = h
		}
	}
	return best
}

func bitscoreLess(a, b *Hit) bool {
	if math.IsNaN(b.Bitscore) {
		return false
	}
	if math.IsNaN(a.Bitscore) {
		return true
	}
	return a.Bitscore < b.Bitscore
}

// Queries returns the distinct query identifiers in input order.
func Queries(hs []Hit) []string {
	seen := make(map[string]interface{}, len(hs))
	ids := make([]string, 0, 8)
	for i := range hs {
		if _, ok := seen[hs[i].Query]; ok {
			continue
		}
		seen[hs[i].Query] = struct{}{}
		ids = append(ids, hs[i].Query)
	}
	return ids
}

// FormatFloat renders a float column value canonically: the shortest
// representation that round-trips, with NaN serialized as NA.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Row renders the hit as one tab-separated line, without a newline,
// in the canonical column order.
func (h *Hit) Row() string {
	var b strings.Builder
	b.Grow(64 + len(h.Query) + len(h.Subject) + len(h.Stitle))
	b.WriteString(h.Query)
	b.WriteByte('\t')
	b.WriteString(h.Subject)
	b.WriteByte('\t')
	b.WriteString(FormatFloat(h.Pident))
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(h.Qlen))
	b.WriteByte('\t')
	b.WriteString(FormatFloat(h.Qcovhsp))
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(h.AlnLen))
	b.WriteByte('\t')
	b.WriteString(FormatFloat(h.Evalue))
	b.WriteByte('\t')
	b.WriteString(FormatFloat(h.Bitscore))
	b.WriteByte('\t')
	b.WriteString(h.Stitle)
	return b.String()
}

// WriteTable writes the canonical header followed by all rows.
func WriteTable(w io.Writer, hs []Hit) error {
	if _, err := fmt.Fprintln(w, Header); err != nil {
		return err
	}
	for i := range hs {
		if _, err := fmt.Fprintln(w, hs[i].Row()); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatusTable writes a per-row threshold report: which hits pass the
// report thresholds and, for failing rows, which criterion was missed.
func WriteStatusTable(w io.Writer, hs []Hit, th Thresholds) error {
	if _, err := fmt.Fprintln(w, "qseqid\tsseqid\tpident\tqcovhsp\tstatus\tneed_id\tneed_cov"); err != nil {
		return err
	}
	for i := range hs {
		h := &hs[i]
		status := "PASS"
		if !h.Pass(th) {
			status = "FAIL"
		}
		needID := !(h.Pident >= th.MinPident)
		needCov := !(h.Qcovhsp >= th.MinQcov)
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
			h.Query, h.Subject, FormatFloat(h.Pident), FormatFloat(h.Qcovhsp),
			status, needID, needCov)
		if err != nil {
			return err
		}
	}
	return nil
}
