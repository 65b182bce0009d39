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
	"math"
	"testing"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

func TestGateCloseEnough(t *testing.T) {
	gate := DefaultGate

	tests := []struct {
		pident, qcov float64
		close        bool
	}{
		{99, 99, true},
		{90, 90, true},  // the gate is inclusive
		{85, 92, false}, // identity below the gate
		{92, 85, false}, // coverage below the gate
		{89.9, 99, false},
		{math.NaN(), 99, false},
	}
	for _, test := range tests {
		hs := []hits.Hit{{Query: "S1", Pident: test.pident, Qcovhsp: test.qcov, Bitscore: 100}}
		if got := gate.CloseEnough(hs); got != test.close {
			t.Errorf("CloseEnough(pident=%v, qcov=%v) = %v, expecting %v",
				test.pident, test.qcov, got, test.close)
		}
	}

	if gate.CloseEnough(nil) {
		t.Error("an empty table must never be close enough")
	}
}

func TestGateUsesBestHitNotFirstRow(t *testing.T) {
	// the close hit sits after a weaker one; row order must not matter
	hs := []hits.Hit{
		{Query: "S1", Subject: "far", Pident: 80, Qcovhsp: 70, Bitscore: 90},
		{Query: "S1", Subject: "close", Pident: 99, Qcovhsp: 98, Bitscore: 350},
	}
	if !DefaultGate.CloseEnough(hs) {
		t.Error("gate should judge the max-bitscore hit, not row 0")
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		state State
		close bool
		next  State
	}{
		{StateInitial, false, StateSearchedFast},
		{StateInitial, true, StateSearchedFast}, // the fast pass always runs
		{StateSearchedFast, true, StateDone},
		{StateSearchedFast, false, StateSearchedSensitive},
		{StateSearchedSensitive, true, StateDone}, // unconditional, no third pass
		{StateSearchedSensitive, false, StateDone},
		{StateDone, false, StateDone},
	}
	for _, test := range tests {
		if got := test.state.Next(test.close); got != test.next {
			t.Errorf("%s.Next(%v) = %s, expecting %s",
				test.state, test.close, got, test.next)
		}
	}
}

// retry monotonicity: below the gate always escalates, at-or-above never does
func TestRetryMonotonicity(t *testing.T) {
	gate := Gate{MinPident: 90, MinQcov: 90}
	for pident := 80.0; pident <= 100; pident += 2.5 {
		for qcov := 80.0; qcov <= 100; qcov += 2.5 {
			hs := []hits.Hit{{Query: "S1", Pident: pident, Qcovhsp: qcov, Bitscore: 100}}
			escalates := StateSearchedFast.Next(gate.CloseEnough(hs)) == StateSearchedSensitive
			expecting := pident < 90 || qcov < 90
			if escalates != expecting {
				t.Errorf("pident=%v qcov=%v: escalates=%v, expecting %v",
					pident, qcov, escalates, expecting)
			}
		}
	}

	if StateSearchedFast.Next(Gate{}.CloseEnough(nil)) != StateSearchedSensitive {
		t.Error("an empty first pass must escalate")
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		algo Algorithm
	}{
		{"megablast", Megablast},
		{"fast", Megablast},
		{"blastn", Blastn},
		{"sensitive", Blastn},
		{"vsearch", Vsearch},
		{"VSEARCH", Vsearch},
	}
	for _, test := range tests {
		got, err := ParseAlgorithm(test.name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %s", test.name, err)
		}
		if got != test.algo {
			t.Errorf("ParseAlgorithm(%q) = %s, expecting %s", test.name, got, test.algo)
		}
	}

	if _, err := ParseAlgorithm("hmmer"); err == nil {
		t.Error("expecting an error for an unsupported aligner")
	}
}

func TestProfileCheck(t *testing.T) {
	good := Profile{Algorithm: Megablast, MinIdentity: 97, MinQueryCov: 80, MaxTargets: 5, Threads: 1}
	if err := good.Check(); err != nil {
		t.Errorf("valid profile rejected: %s", err)
	}

	bad := []Profile{
		{MinIdentity: -1, MinQueryCov: 80, MaxTargets: 5, Threads: 1},
		{MinIdentity: 101, MinQueryCov: 80, MaxTargets: 5, Threads: 1},
		{MinIdentity: 97, MinQueryCov: 120, MaxTargets: 5, Threads: 1},
		{MinIdentity: 97, MinQueryCov: 80, MaxTargets: 0, Threads: 1},
		{MinIdentity: 97, MinQueryCov: 80, MaxTargets: 5, Threads: 0},
	}
	for i, p := range bad {
		if err := p.Check(); err == nil {
			t.Errorf("profile %d should be rejected", i)
		}
	}
}
