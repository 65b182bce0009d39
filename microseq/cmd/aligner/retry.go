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

package aligner

import (
	"context"
	"fmt"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

// Gate is the close-hit criterion deciding whether a fast first pass found
// something good enough to skip the sensitive pass. It is not the report
// threshold: the gate asks "did the search get close", the report
// thresholds decide later whether a hit counts as a confident match.
type Gate struct {
	MinPident float64
	MinQcov   float64
}

// DefaultGate is the conventional 90/90 close-hit gate. megablast
// under-reports divergent matches well before identities drop to the
// high-80s, so anything below this is worth a slower look.
var DefaultGate = Gate{MinPident: 90, MinQcov: 90}

// CloseEnough reports whether the table's best hit clears the gate.
// An empty table never does. The best hit is found by an explicit
// max-bitscore scan, not by trusting row order.
func (g Gate) CloseEnough(hs []hits.Hit) bool {
	best := hits.Best(hs)
	if best == nil {
		return false
	}
	return best.Pident >= g.MinPident && best.Qcovhsp >= g.MinQcov
}

// State of an adaptive search run.
type State int

const (
	StateInitial State = iota
	StateSearchedFast
	StateSearchedSensitive
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateSearchedFast:
		return "searched-fast"
	case StateSearchedSensitive:
		return "searched-sensitive"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Next returns the state following s, given whether the current result
// clears the close-hit gate. The sensitive pass is terminal; there is
// never a third pass.
func (s State) Next(closeEnough bool) State {
	switch s {
	case StateInitial:
		return StateSearchedFast
	case StateSearchedFast:
		if closeEnough {
			return StateDone
		}
		return StateSearchedSensitive
	case StateSearchedSensitive:
		return StateDone
	}
	return StateDone
}

// Result summarizes one adaptive search run. Zero hits is a valid result:
// Hits is then empty (never nil) and the output file holds only a header.
type Result struct {
	Hits        []hits.Hit
	State       State
	Passes      int
	Sensitive   bool   // whether the sensitive pass ran
	RetryReason string // why it ran; "" for a single-pass run
}

// Search runs the search described by opt. A Megablast profile engages
// the adaptive machine: the fast pass runs first, and when its result is
// empty, unreadable, or its best hit misses the gate, a sensitive blastn
// pass at the same floors replaces it. Explicit Blastn or Vsearch
// profiles run a single pass with no retry.
//
// The final hit table is left at opt.OutFile in either case; the second
// pass overwrites the first pass's table.
func Search(ctx context.Context, opt *SearchOptions, gate Gate) (*Result, error) {
	if err := opt.Profile.Check(); err != nil {
		return nil, err
	}

	if opt.Profile.Algorithm != Megablast {
		if err := New(opt.Profile.Algorithm).Search(ctx, opt); err != nil {
			return nil, err
		}
		hs, err := hits.ParseFile(opt.OutFile)
		if err != nil {
			return nil, err
		}
		return &Result{Hits: hs, State: StateDone, Passes: 1}, nil
	}

	state := StateInitial.Next(false) // the fast pass always runs
	if err := New(Megablast).Search(ctx, opt); err != nil {
		return nil, err
	}

	var reason string
	hs, err := hits.ParseFile(opt.OutFile)
	switch {
	case err != nil:
		// fail open toward the more thorough search
		reason = fmt.Sprintf("unreadable fast-pass table (%s)", err)
	case len(hs) == 0:
		reason = "no hits in fast pass"
	case !gate.CloseEnough(hs):
		best := hits.Best(hs)
		reason = fmt.Sprintf("best fast-pass hit not close enough (pident %s, qcovhsp %s, gate %v/%v)",
			hits.FormatFloat(best.Pident), hits.FormatFloat(best.Qcovhsp),
			gate.MinPident, gate.MinQcov)
	}

	state = state.Next(reason == "")
	if state == StateDone {
		return &Result{Hits: hs, State: state, Passes: 1}, nil
	}

	opt2 := *opt
	opt2.Profile.Algorithm = Blastn
	if err = New(Blastn).Search(ctx, &opt2); err != nil {
		return nil, err
	}
	hs, err = hits.ParseFile(opt.OutFile)
	if err != nil {
		// nothing more thorough left to escalate to
		return nil, err
	}

	return &Result{
		Hits:        hs,
		State:       state.Next(true),
		Passes:      2,
		Sensitive:   true,
		RetryReason: reason,
	}, nil
}
