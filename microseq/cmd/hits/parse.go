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

package hits

import (
	"bufio"
	stderrors "errors"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

// ErrMalformedTable is returned when a non-blank data row does not have
// the expected number of columns. Bad numeric fields are not malformed,
// they only coerce to NaN.
var ErrMalformedTable = stderrors.New("malformed alignment table")

// Splitting fallback for tables saved without tabs: runs of two or more
// spaces, or commas. Single spaces are preserved so subject titles survive.
var reLooseDelim = regexp.MustCompile(`,| {2,}`)

// ParseFile reads an alignment hit table, plain or gzip-compressed
// ("-" for stdin), and returns its rows in input order.
func ParseFile(file string) ([]Hit, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read hit table %s", file)
	}
	defer fh.Close()

	hs, err := Parse(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "parse hit table %s", file)
	}
	return hs, nil
}

// Parse converts raw tabular text into hits.
//
// Tolerated input variation:
//   - an optional literal header row (first field "qseqid", case-sensitive);
//   - comment lines starting with '#' and blank lines, which are skipped;
//   - a table saved with loose delimiters (no tab anywhere): fields are then
//     split on commas or runs of >=2 spaces;
//   - non-numeric values in numeric columns, coerced to NaN (floats)
//     or 0 (ints).
//
// The only fatal condition is a data row whose column count is not 9,
// reported as ErrMalformedTable with the line number. Empty input yields
// an empty, non-nil slice.
func Parse(r io.Reader) ([]Hit, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // subject titles can be long

	// The delimiter decision needs the whole file: a table is only treated
	// as loosely delimited when no line contains a tab. Hit tables are
	// experiment-scale, buffering the lines is fine.
	lines := make([]string, 0, 1024)
	var hasTab bool
	var line string
	for scanner.Scan() {
		line = strings.TrimSuffix(scanner.Text(), "\r")
		if !hasTab && strings.IndexByte(line, '\t') >= 0 {
			hasTab = true
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	hs := make([]Hit, 0, len(lines))
	var fields []string
	var first = true
	for i, line := range lines {
		if line == "" || strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '#' {
			continue
		}

		if hasTab {
			fields = strings.Split(line, "\t")
		} else {
			fields = reLooseDelim.Split(line, -1)
		}

		// optional literal header
		if first {
			first = false
			if fields[0] == Columns[0] {
				continue
			}
		}

		if len(fields) != NumColumns {
			return hs, errors.Wrapf(ErrMalformedTable,
				"line %d: %d columns, expecting %d", i+1, len(fields), NumColumns)
		}

		hs = append(hs, Hit{
			Query:    fields[0],
			Subject:  fields[1],
			Pident:   CoerceFloat(fields[2]),
			Qlen:     CoerceInt(fields[3]),
			Qcovhsp:  CoerceFloat(fields[4]),
			AlnLen:   CoerceInt(fields[5]),
			Evalue:   CoerceFloat(fields[6]),
			Bitscore: CoerceFloat(fields[7]),
			Stitle:   fields[8],
		})
	}
	return hs, nil
}

// CoerceFloat parses a float column value, NaN on failure.
func CoerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// CoerceInt parses an int column value, 0 on failure. Integers written in
// float form ("300.0") are tolerated.
func CoerceInt(s string) int {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err == nil {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int(f)
}
