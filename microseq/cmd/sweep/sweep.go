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

// Package sweep explores identity/coverage cutoff pairs over a relaxed
// search result, reporting the pairs whose passing-sample count lands
// closest to a target. It accepts either a raw hit table, which it first
// collapses to the best row per sample, or an already collapsed
// sample/best_pident/best_qcov table.
package sweep

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/natsort"
	"github.com/shenwei356/xopen"
	"gonum.org/v1/gonum/stat"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

// Sample is the best observed alignment of one sample: the identity,
// coverage and bitscore of a single row, not per-column maxima.
type Sample struct {
	ID       string
	Pident   float64
	Qcov     float64
	Bitscore float64
}

// Cutoff is one grid cell of the sweep: the number of samples whose best
// hit passes identity >= Identity and coverage >= Coverage.
type Cutoff struct {
	Identity int
	Coverage int
	Count    int
}

// Options bound the sweep grid.
type Options struct {
	Target int

	IDMin, IDMax   int
	CovMin, CovMax int
	Step           int

	Top int
}

// DefaultOptions covers the useful 16S range: identity 80-100%,
// coverage 0-100%, stepped by 1, keeping the 10 best pairs.
func DefaultOptions(target int) Options {
	return Options{
		Target: target,
		IDMin:  80, IDMax: 100,
		CovMin: 0, CovMax: 100,
		Step: 1,
		Top:  10,
	}
}

// Check validates the grid bounds.
func (o Options) Check() error {
	if o.Target < 0 {
		return fmt.Errorf("target (%d) should not be negative", o.Target)
	}
	if o.Step < 1 {
		return fmt.Errorf("step (%d) should be at least 1", o.Step)
	}
	if o.Top < 1 {
		return fmt.Errorf("top (%d) should be at least 1", o.Top)
	}
	if o.IDMin < 0 || o.IDMax > 100 || o.IDMin > o.IDMax {
		return fmt.Errorf("identity range [%d, %d] should be within [0, 100]", o.IDMin, o.IDMax)
	}
	if o.CovMin < 0 || o.CovMax > 100 || o.CovMin > o.CovMax {
		return fmt.Errorf("coverage range [%d, %d] should be within [0, 100]", o.CovMin, o.CovMax)
	}
	return nil
}

// CountPassing counts samples whose best hit meets both thresholds.
// NaN identity or coverage never passes.
func CountPassing(samples []Sample, identity, coverage int) int {
	n := 0
	for i := range samples {
		if samples[i].Pident >= float64(identity) && samples[i].Qcov >= float64(coverage) {
			n++
		}
	}
	return n
}

// Suggest scans the whole cutoff grid and returns the Top cells ordered
// by closeness of their passing count to the target, breaking ties by
// higher identity, then higher coverage. The ordering is total, so the
// result does not depend on scan order.
func Suggest(samples []Sample, opt Options) ([]Cutoff, error) {
	if err := opt.Check(); err != nil {
		return nil, err
	}

	results := make([]Cutoff, 0,
		((opt.IDMax-opt.IDMin)/opt.Step+1)*((opt.CovMax-opt.CovMin)/opt.Step+1))
	for identity := opt.IDMin; identity <= opt.IDMax; identity += opt.Step {
		for coverage := opt.CovMin; coverage <= opt.CovMax; coverage += opt.Step {
			results = append(results, Cutoff{
				Identity: identity,
				Coverage: coverage,
				Count:    CountPassing(samples, identity, coverage),
			})
		}
	}

	target := opt.Target
	sort.Slice(results, func(i, j int) bool {
		di := results[i].Count - target
		if di < 0 {
			di = -di
		}
		dj := results[j].Count - target
		if dj < 0 {
			dj = -dj
		}
		if di != dj {
			return di < dj
		}
		if results[i].Identity != results[j].Identity {
			return results[i].Identity > results[j].Identity
		}
		return results[i].Coverage > results[j].Coverage
	})

	if len(results) > opt.Top {
		results = results[:opt.Top]
	}
	return results, nil
}

// Precollapse reduces a hit table to one Sample per query: the row with
// the highest identity, ties broken by bitscore. Coverage and bitscore
// come from that same row, a sample never mixes fields of different
// rows. A non-nil normalize is applied to query IDs before grouping.
// Samples come back in natural sort order.
func Precollapse(rows []taxdb.AnnotatedHit, normalize hits.NormalizeFunc) []Sample {
	best := make(map[string]*taxdb.AnnotatedHit, 64)
	for i := range rows {
		id := rows[i].Query
		if normalize != nil {
			id = normalize(id)
		}
		cur, ok := best[id]
		if !ok || betterRow(&rows[i], cur) {
			row := rows[i]
			best[id] = &row
		}
	}

	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	natsort.Sort(ids)

	samples := make([]Sample, 0, len(ids))
	for _, id := range ids {
		row := best[id]
		samples = append(samples, Sample{
			ID:       id,
			Pident:   row.Pident,
			Qcov:     row.Qcovhsp,
			Bitscore: row.Bitscore,
		})
	}
	return samples
}

// betterRow prefers higher identity, then higher bitscore, NaN last.
func betterRow(a, b *taxdb.AnnotatedHit) bool {
	an, bn := math.IsNaN(a.Pident), math.IsNaN(b.Pident)
	switch {
	case an && bn:
	case an:
		return false
	case bn:
		return true
	case a.Pident != b.Pident:
		return a.Pident > b.Pident
	}
	if math.IsNaN(b.Bitscore) {
		return !math.IsNaN(a.Bitscore)
	}
	return a.Bitscore > b.Bitscore
}

// SampleHeader is the header of a collapsed sample table.
const SampleHeader = "sample_id\tbest_pident\tbest_qcov\tbest_bitscore"

// LoadSamples reads either table shape. A header mentioning best_pident
// marks a collapsed table; anything else is parsed as a hit table and
// collapsed here.
func LoadSamples(file string) ([]Sample, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read sample table %s", file)
	}
	defer fh.Close()

	data, err := io.ReadAll(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "read sample table %s", file)
	}

	if isCollapsed(data) {
		samples, err := ParseSamples(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "parse sample table %s", file)
		}
		return samples, nil
	}

	rows, err := taxdb.ParseAnnotated(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parse hit table %s", file)
	}
	return Precollapse(rows, nil), nil
}

// isCollapsed looks at the first data line only.
func isCollapsed(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		return strings.Contains(line, "best_pident")
	}
	return false
}

// ParseSamples reads a collapsed sample table. The header is required,
// columns are located by name, extra columns are ignored and a missing
// best_bitscore column yields NaN scores.
func ParseSamples(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	idCol, pidentCol, qcovCol, bitscoreCol := -1, -1, -1, -1
	nCols := 0
	samples := make([]Sample, 0, 64)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.TrimSpace(line) == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")

		if idCol < 0 { // header
			for i, name := range fields {
				switch name {
				case "sample_id", "qseqid":
					idCol = i
				case "best_pident":
					pidentCol = i
				case "best_qcov":
					qcovCol = i
				case "best_bitscore":
					bitscoreCol = i
				}
			}
			if idCol < 0 || pidentCol < 0 || qcovCol < 0 {
				return nil, fmt.Errorf("line %d: sample_id, best_pident and best_qcov columns required", n)
			}
			nCols = len(fields)
			continue
		}

		if len(fields) != nCols {
			return nil, fmt.Errorf("line %d: %d columns, expecting %d", n, len(fields), nCols)
		}
		sample := Sample{
			ID:       fields[idCol],
			Pident:   hits.CoerceFloat(fields[pidentCol]),
			Qcov:     hits.CoerceFloat(fields[qcovCol]),
			Bitscore: math.NaN(),
		}
		if bitscoreCol >= 0 {
			sample.Bitscore = hits.CoerceFloat(fields[bitscoreCol])
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// WriteSamples writes a collapsed sample table.
func WriteSamples(w io.Writer, samples []Sample) error {
	if _, err := fmt.Fprintln(w, SampleHeader); err != nil {
		return err
	}
	for i := range samples {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", samples[i].ID,
			hits.FormatFloat(samples[i].Pident),
			hits.FormatFloat(samples[i].Qcov),
			hits.FormatFloat(samples[i].Bitscore))
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the best-hit quality across samples.
type Stats struct {
	N           int
	MeanPident  float64
	StdevPident float64
	MeanQcov    float64
	StdevQcov   float64
}

// Summarize computes mean and standard deviation of per-sample best
// identity and coverage, skipping NaN values.
func Summarize(samples []Sample) Stats {
	pidents := make([]float64, 0, len(samples))
	qcovs := make([]float64, 0, len(samples))
	for i := range samples {
		if !math.IsNaN(samples[i].Pident) {
			pidents = append(pidents, samples[i].Pident)
		}
		if !math.IsNaN(samples[i].Qcov) {
			qcovs = append(qcovs, samples[i].Qcov)
		}
	}
	return Stats{
		N:           len(samples),
		MeanPident:  stat.Mean(pidents, nil),
		StdevPident: stat.StdDev(pidents, nil),
		MeanQcov:    stat.Mean(qcovs, nil),
		StdevQcov:   stat.StdDev(qcovs, nil),
	}
}
