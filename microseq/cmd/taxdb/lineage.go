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

package taxdb

import (
	"regexp"
	"strings"
)

// Depth counts the ranks of a lineage that carry actual content.
// A segment with a rank prefix ("g__Lactobacillus") counts only when text
// follows the prefix, so the trailing "s__" of Greengenes-style lineages
// does not inflate the depth. Unprefixed non-blank segments count as-is.
// An empty lineage has depth 0.
func Depth(lineage string) int {
	if lineage == "" {
		return 0
	}
	n := 0
	for _, seg := range strings.Split(lineage, ";") {
		seg = strings.TrimSpace(seg)
		if i := strings.Index(seg, "__"); i >= 0 {
			seg = seg[i+2:]
		}
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}

// DefaultSpeciesPident is the identity needed before a subject title is
// trusted as a species label. 97% is the conventional species boundary
// for 16S sequence identity.
const DefaultSpeciesPident = 97.0

// fullLineageRanks is the rank count of a complete domain-to-species
// lineage, the point past which there is no species gap left to fill.
const fullLineageRanks = 7

// reBinomial finds candidate "Genus epithet" pairs in free-text subject
// titles. The epithet must be all lowercase, so "sp." and strain codes
// terminate the match.
var reBinomial = regexp.MustCompile(`([A-Z][a-z]+) ([a-z][a-z-]*)`)

// Capitalized words that start a binomial-looking pair without naming
// a genus, and lowercase words that follow a genus without naming
// a species.
var (
	notGenus = map[string]bool{
		"Uncultured":   true,
		"Unidentified": true,
		"Uncultivated": true,
	}
	notEpithet = map[string]bool{
		"sp":         true,
		"spp":        true,
		"cf":         true,
		"aff":        true,
		"bacterium":  true,
		"strain":     true,
		"clone":      true,
		"isolate":    true,
		"culture":    true,
		"enrichment": true,
	}
)

// SpeciesFromTitle extracts a binomial species name from a subject title,
// returned with an underscore joining genus and epithet. Placeholder pairs
// like "Bacillus sp" or "Uncultured bacterium" are skipped in favor of a
// later real binomial, if any.
func SpeciesFromTitle(title string) (string, bool) {
	for _, m := range reBinomial.FindAllStringSubmatch(title, -1) {
		if notGenus[m[1]] || notEpithet[m[2]] {
			continue
		}
		return m[1] + "_" + m[2], true
	}
	return "", false
}

// FillSpecies appends a species segment recovered from the subject title
// when the joined lineage stops above species rank (depth below 7, so an
// empty trailing "s__" still counts as a gap) and the alignment identity
// is at least minPident. Unmatched rows (empty lineage) are left alone.
// The new segment gets an "s__" prefix when the lineage uses rank
// prefixes. Reports whether a fill happened.
func FillSpecies(row *AnnotatedHit, minPident float64) bool {
	if row.Lineage == "" {
		return false
	}
	if Depth(row.Lineage) >= fullLineageRanks {
		return false
	}
	if !(row.Pident >= minPident) {
		return false
	}
	species, ok := SpeciesFromTitle(row.Stitle)
	if !ok {
		return false
	}
	if strings.Contains(row.Lineage, "__") {
		species = "s__" + species
	}
	row.Lineage = trimEmptyRanks(row.Lineage) + ";" + species
	return true
}

// trimEmptyRanks drops trailing lineage segments that carry no content,
// either blank or a bare rank prefix like "s__", so the filled species
// lands where the gap was.
func trimEmptyRanks(lineage string) string {
	segs := strings.Split(lineage, ";")
	for len(segs) > 0 {
		seg := strings.TrimSpace(segs[len(segs)-1])
		if i := strings.Index(seg, "__"); i >= 0 {
			seg = seg[i+2:]
		}
		if strings.TrimSpace(seg) != "" {
			break
		}
		segs = segs[:len(segs)-1]
	}
	return strings.Join(segs, ";")
}

// FillSpeciesAll applies FillSpecies to every row and returns the number
// of rows changed.
func FillSpeciesAll(rows []AnnotatedHit, minPident float64) int {
	filled := 0
	for i := range rows {
		if FillSpecies(&rows[i], minPident) {
			filled++
		}
	}
	return filled
}
