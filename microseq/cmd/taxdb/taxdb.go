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

// Package taxdb attaches taxonomic lineages to alignment hits. A reference
// taxonomy table (accession -> lineage, the QIIME2 taxonomy.tsv layout)
// is loaded into memory and left-joined onto hit tables by canonicalized
// subject accession: hits without a match keep an empty lineage and are
// only counted, never dropped.
package taxdb

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
	"github.com/shenwei356/xopen"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

// Table is an in-memory reference taxonomy: lineage strings keyed by
// accession, exactly as they appear in the reference file.
type Table struct {
	Lineages map[string]string
}

// LoadTable reads a tab-separated taxonomy reference (plain or gzipped).
// The first column is the accession, the second the lineage; further
// columns (confidence etc.) are ignored. Comment lines, blank lines and
// a QIIME2-style header row are skipped. Lines without a tab are skipped
// too: with left-join semantics a dropped reference row only shows up as
// an unmatched hit later, and a fully unusable file is reported here.
func LoadTable(file string, threads int) (*Table, error) {
	if threads < 1 {
		threads = 1
	}
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}
		items := strings.SplitN(line, "\t", 3)
		if len(items) < 2 {
			return nil, false, nil
		}
		switch items[0] { // tolerated header spellings
		case "Feature ID", "accession", "sseqid", "id":
			return nil, false, nil
		}
		return [2]string{items[0], items[1]}, true, nil
	}

	reader, err := breader.NewBufferedReader(file, threads, 64, fn)
	if err != nil {
		return nil, errors.Wrapf(err, "read taxonomy table %s", file)
	}

	lineages := make(map[string]string, 1024)
	var data interface{}
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, errors.Wrapf(chunk.Err, "read taxonomy table %s", file)
		}
		for _, data = range chunk.Data {
			kv := data.([2]string)
			lineages[kv[0]] = kv[1]
		}
	}
	if len(lineages) == 0 {
		return nil, fmt.Errorf("no accession/lineage pairs found in %s", file)
	}
	return &Table{Lineages: lineages}, nil
}

// Lookup returns the lineage for a canonical accession.
func (t *Table) Lookup(accession string) (string, bool) {
	lineage, ok := t.Lineages[accession]
	return lineage, ok
}

// AnnotatedHit is a hit with its joined lineage. An empty Lineage means
// the reference table had no entry for the subject.
type AnnotatedHit struct {
	hits.Hit
	Lineage string
}

// Join left-joins lineages onto hits by canonical subject accession,
// preserving input order. The subject IDs of the returned rows are
// rewritten to their canonical form, so downstream tables all carry the
// same accession spelling. The second return value counts rows without
// a taxonomy match; callers surface it as a summary, not an error.
func (t *Table) Join(hs []hits.Hit) ([]AnnotatedHit, int) {
	rows := make([]AnnotatedHit, len(hs))
	unmatched := 0
	for i := range hs {
		rows[i].Hit = hs[i]
		rows[i].Subject = CanonicalAccession(hs[i].Subject)
		if lineage, ok := t.Lineages[rows[i].Subject]; ok {
			rows[i].Lineage = lineage
		} else {
			unmatched++
		}
	}
	return rows, unmatched
}

// missingLineage is how an absent lineage is serialized.
const missingLineage = "NA"

// AnnotatedHeader is the header of a lineage-bearing hit table:
// the canonical 9 columns plus taxonomy.
var AnnotatedHeader = hits.Header + "\ttaxonomy"

// WriteAnnotatedTable writes rows as a 10-column table.
func WriteAnnotatedTable(w io.Writer, rows []AnnotatedHit) error {
	if _, err := fmt.Fprintln(w, AnnotatedHeader); err != nil {
		return err
	}
	for i := range rows {
		lineage := rows[i].Lineage
		if lineage == "" {
			lineage = missingLineage
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", rows[i].Row(), lineage); err != nil {
			return err
		}
	}
	return nil
}

// ParseAnnotatedFile reads a lineage-bearing hit table. A plain 9-column
// table is accepted too, it simply yields empty lineages.
func ParseAnnotatedFile(file string) ([]AnnotatedHit, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read annotated hit table %s", file)
	}
	defer fh.Close()

	rows, err := ParseAnnotated(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "parse annotated hit table %s", file)
	}
	return rows, nil
}

// ParseAnnotated converts tabular text into annotated hits. The parsing
// rules match the plain hit-table parser: optional header, '#' comments,
// blank lines, numeric coercion to NaN/0. Rows must have 9 or 10 columns;
// anything else fails with the malformed-table error.
func ParseAnnotated(r io.Reader) ([]AnnotatedHit, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	rows := make([]AnnotatedHit, 0, 1024)
	var fields []string
	first := true
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '#' {
			continue
		}

		fields = strings.Split(line, "\t")
		if first {
			first = false
			if fields[0] == "qseqid" {
				continue
			}
		}
		if len(fields) != hits.NumColumns && len(fields) != hits.NumColumns+1 {
			return rows, errors.Wrapf(hits.ErrMalformedTable,
				"line %d: %d columns, expecting %d or %d",
				n, len(fields), hits.NumColumns, hits.NumColumns+1)
		}

		row := AnnotatedHit{
			Hit: hits.Hit{
				Query:    fields[0],
				Subject:  fields[1],
				Pident:   hits.CoerceFloat(fields[2]),
				Qlen:     hits.CoerceInt(fields[3]),
				Qcovhsp:  hits.CoerceFloat(fields[4]),
				AlnLen:   hits.CoerceInt(fields[5]),
				Evalue:   hits.CoerceFloat(fields[6]),
				Bitscore: hits.CoerceFloat(fields[7]),
				Stitle:   fields[8],
			},
		}
		if len(fields) == hits.NumColumns+1 && fields[9] != missingLineage {
			row.Lineage = fields[9]
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
