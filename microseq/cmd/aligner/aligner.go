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

// Package aligner invokes the external search tools (blastn, vsearch) and
// normalizes whatever they produce into the canonical hit table. It owns
// the adaptive fast/sensitive retry decision, cooperative cancellation of
// running child processes, and the temporary-file discipline that keeps a
// failed run from leaving a half-written result behind.
package aligner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
)

// Algorithm selects one of the supported search backends. The set is
// closed: a new backend means a new constant and a new case in New.
type Algorithm int

const (
	// Megablast is the fast first-pass profile (blastn -task megablast).
	// It is the only algorithm the adaptive retry applies to.
	Megablast Algorithm = iota
	// Blastn is the sensitive profile (blastn -task blastn).
	Blastn
	// Vsearch runs vsearch --usearch_global against a FASTA database.
	Vsearch
)

func (a Algorithm) String() string {
	switch a {
	case Megablast:
		return "megablast"
	case Blastn:
		return "blastn"
	case Vsearch:
		return "vsearch"
	}
	return "unknown"
}

// ParseAlgorithm maps a flag value to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "megablast", "fast":
		return Megablast, nil
	case "blastn", "sensitive":
		return Blastn, nil
	case "vsearch":
		return Vsearch, nil
	}
	return 0, fmt.Errorf("unknown aligner: %s (available: megablast, blastn, vsearch)", name)
}

// Profile bundles the parameters of one aligner invocation.
// The identity/coverage values are search-time floors applied at the
// aligner boundary; they may be looser than the report thresholds applied
// afterwards, never stricter.
type Profile struct {
	Algorithm   Algorithm
	MinIdentity float64 // percent, 0-100
	MinQueryCov float64 // percent, 0-100
	MaxTargets  int
	Threads     int
}

// Check validates the profile the way flag values are validated.
func (p *Profile) Check() error {
	if p.MinIdentity < 0 || p.MinIdentity > 100 {
		return fmt.Errorf("search identity floor (%v) should be in the range of [0, 100]", p.MinIdentity)
	}
	if p.MinQueryCov < 0 || p.MinQueryCov > 100 {
		return fmt.Errorf("search coverage floor (%v) should be in the range of [0, 100]", p.MinQueryCov)
	}
	if p.MaxTargets < 1 {
		return fmt.Errorf("max targets per query (%d) should be >= 1", p.MaxTargets)
	}
	if p.Threads < 1 {
		return fmt.Errorf("thread count (%d) should be >= 1", p.Threads)
	}
	return nil
}

// Database holds the resolved reference paths a backend may need.
// blastn uses the BLAST database prefix, vsearch the FASTA file.
type Database struct {
	Name    string
	BlastDB string
	Fasta   string
}

// ProgressFunc receives advisory completion percentages in [0,100].
// It is called from the goroutine consuming the child's output; a nil
// function disables reporting. Progress never affects correctness.
type ProgressFunc func(pct int)

// SearchOptions parameterizes one search invocation.
type SearchOptions struct {
	QueryFile  string
	Database   Database
	OutFile    string // canonical hit table; written via OutFile+".tmp" and a final rename
	Profile    Profile
	OnProgress ProgressFunc
}

// An Aligner runs one search, writing the canonical 9-column hit table to
// opt.OutFile. Implementations stream or poll the child's output to drive
// opt.OnProgress, honor ctx for cooperative cancellation, and write the
// table through a temporary file so the canonical path only ever holds a
// complete result. Zero hits is a success: the table then contains only
// the header.
type Aligner interface {
	Name() string
	Search(ctx context.Context, opt *SearchOptions) error
}

// New returns the backend for an algorithm.
func New(a Algorithm) Aligner {
	switch a {
	case Megablast:
		return &blastnAligner{task: "megablast"}
	case Blastn:
		return &blastnAligner{task: "blastn"}
	case Vsearch:
		return &vsearchAligner{}
	}
	panic(fmt.Sprintf("invalid algorithm: %d", a))
}

// ErrCancelled reports a search stopped by the caller. It is distinct from
// tool failure so interactive callers can tell a user-initiated stop from
// a crashed aligner.
var ErrCancelled = stderrors.New("search cancelled")

// tmpFileExt is appended to an output path while it is being written.
const tmpFileExt = ".tmp"

// maxStderr caps how much captured stderr an ExecError carries.
const maxStderr = 4096

// ExecError reports an external tool that exited with a non-zero status,
// with the tail of its stderr attached.
type ExecError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// wrapWaitError converts the error from cmd.Wait into an ExecError.
func wrapWaitError(tool string, err error, stderr []byte) error {
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return &ExecError{
			Tool:     tool,
			ExitCode: exitErr.ExitCode(),
			Stderr:   tailString(stderr, maxStderr),
		}
	}
	return errors.Wrapf(err, "run %s", tool)
}

func tailString(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

// countQueries reads the query file once, returning the record count and
// each record's sequence length keyed by sequence ID (the first word of
// the header, which is what blastn reports as qseqid).
func countQueries(file string) (int, map[string]int, error) {
	reader, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read query file %s", file)
	}
	defer reader.Close()

	n := 0
	lens := make(map[string]int, 64)
	var record *fastx.Record
	for {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return n, lens, errors.Wrapf(err, "read query %d in %s", n, file)
		}
		n++
		lens[string(record.ID)] = len(record.Seq.Seq)
	}
	if n == 0 {
		return 0, nil, fmt.Errorf("%s contains no sequence records, nothing to search", file)
	}
	return n, lens, nil
}
