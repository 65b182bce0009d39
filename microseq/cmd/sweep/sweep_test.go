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

package sweep

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

func testSamples() []Sample {
	return []Sample{
		{ID: "s1", Pident: 99.2, Qcov: 95, Bitscore: 700},
		{ID: "s2", Pident: 97.5, Qcov: 88, Bitscore: 650},
		{ID: "s3", Pident: 94.0, Qcov: 91, Bitscore: 500},
		{ID: "s4", Pident: 86.0, Qcov: 60, Bitscore: 200},
	}
}

func TestCountPassing(t *testing.T) {
	samples := testSamples()
	tests := []struct {
		identity, coverage int
		want               int
	}{
		{97, 80, 2},
		{94, 80, 3},
		{80, 0, 4},
		{100, 100, 0},
		{86, 60, 4},
	}
	for _, test := range tests {
		if got := CountPassing(samples, test.identity, test.coverage); got != test.want {
			t.Errorf("CountPassing(%d, %d) = %d, want %d",
				test.identity, test.coverage, got, test.want)
		}
	}
}

func TestCountPassingNaN(t *testing.T) {
	samples := []Sample{
		{ID: "s1", Pident: math.NaN(), Qcov: 95},
		{ID: "s2", Pident: 99, Qcov: math.NaN()},
	}
	if got := CountPassing(samples, 0, 0); got != 0 {
		t.Errorf("NaN samples should never pass, got %d", got)
	}
}

func TestSuggestOrdering(t *testing.T) {
	opt := DefaultOptions(2)
	opt.Step = 1
	suggestions, err := Suggest(testSamples(), opt)
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != opt.Top {
		t.Fatalf("got %d suggestions, want %d", len(suggestions), opt.Top)
	}

	// many cells hit the target count exactly; ties resolve to the
	// highest identity, then the highest coverage
	first := suggestions[0]
	if first.Count != 2 {
		t.Fatalf("first suggestion count = %d, want 2", first.Count)
	}
	for _, s := range suggestions {
		if s.Count != 2 {
			break
		}
		if s.Identity > first.Identity ||
			(s.Identity == first.Identity && s.Coverage > first.Coverage) {
			t.Fatalf("suggestion %+v sorted after worse %+v", s, first)
		}
	}

	// distance to the target is non-decreasing down the list
	prev := -1
	for _, s := range suggestions {
		d := s.Count - opt.Target
		if d < 0 {
			d = -d
		}
		if prev >= 0 && d < prev {
			t.Fatalf("suggestions not ordered by distance to target: %v", suggestions)
		}
		prev = d
	}
}

func TestSuggestScanOrderIndependent(t *testing.T) {
	samples := testSamples()
	opt := DefaultOptions(3)
	opt.Step = 2

	want, err := Suggest(samples, opt)
	if err != nil {
		t.Fatal(err)
	}
	// reversing the sample slice must not change the suggestion list
	reversed := make([]Sample, len(samples))
	for i := range samples {
		reversed[len(samples)-1-i] = samples[i]
	}
	got, err := Suggest(reversed, opt)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("suggestion %d differs: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestSuggestBadOptions(t *testing.T) {
	for _, opt := range []Options{
		{Target: -1, IDMin: 80, IDMax: 100, CovMax: 100, Step: 1, Top: 10},
		{Target: 5, IDMin: 80, IDMax: 100, CovMax: 100, Step: 0, Top: 10},
		{Target: 5, IDMin: 90, IDMax: 80, CovMax: 100, Step: 1, Top: 10},
		{Target: 5, IDMin: 80, IDMax: 100, CovMin: 50, CovMax: 40, Step: 1, Top: 10},
		{Target: 5, IDMin: 80, IDMax: 100, CovMax: 100, Step: 1, Top: 0},
	} {
		if _, err := Suggest(nil, opt); err == nil {
			t.Errorf("options %+v should be rejected", opt)
		}
	}
}

func annotated(sample string, pident, qcov, bitscore float64) taxdb.AnnotatedHit {
	return taxdb.AnnotatedHit{Hit: hits.Hit{
		Query: sample, Subject: "X", Pident: pident, Qlen: 400,
		Qcovhsp: qcov, AlnLen: 380, Evalue: 1e-50, Bitscore: bitscore,
		Stitle: "X title",
	}}
}

func TestPrecollapse(t *testing.T) {
	rows := []taxdb.AnnotatedHit{
		annotated("s10", 96.0, 90, 400),
		annotated("s2", 99.0, 50, 500),
		annotated("s2", 99.0, 90, 400), // same identity, lower bitscore
		annotated("s2", 95.0, 99, 900), // higher bitscore but lower identity
		annotated("s1", 88.0, 70, 200),
	}
	samples := Precollapse(rows, nil)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	// natural order
	if samples[0].ID != "s1" || samples[1].ID != "s2" || samples[2].ID != "s10" {
		t.Errorf("sample order: %s, %s, %s", samples[0].ID, samples[1].ID, samples[2].ID)
	}
	// s2 keeps the max-identity row, bitscore breaking the tie, and its
	// coverage comes from that same row
	s2 := samples[1]
	if s2.Pident != 99.0 || s2.Bitscore != 500 || s2.Qcov != 50 {
		t.Errorf("s2 = %+v, want pident 99 / bitscore 500 / qcov 50", s2)
	}
}

func TestPrecollapseNaN(t *testing.T) {
	rows := []taxdb.AnnotatedHit{
		annotated("s1", math.NaN(), 90, 400),
		annotated("s1", 91.0, 80, 300),
	}
	samples := Precollapse(rows, nil)
	if len(samples) != 1 || samples[0].Pident != 91.0 {
		t.Errorf("NaN row should lose: %+v", samples)
	}
}

func TestSampleTableRoundTrip(t *testing.T) {
	samples := testSamples()
	var buf bytes.Buffer
	if err := WriteSamples(&buf, samples); err != nil {
		t.Fatal(err)
	}
	got, err := ParseSamples(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(samples) {
		t.Fatalf("round trip returned %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %+v, want %+v", i, got[i], samples[i])
		}
	}
}

func TestLoadSamplesCollapsed(t *testing.T) {
	file := filepath.Join(t.TempDir(), "collapsed.tsv")
	data := SampleHeader + "\n" +
		"s1\t99.2\t95\t700\n" +
		"s2\t97.5\t88\t650\n"
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	samples, err := LoadSamples(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || samples[0].Pident != 99.2 {
		t.Fatalf("collapsed table misparsed: %+v", samples)
	}
}

func TestLoadSamplesRawHits(t *testing.T) {
	file := filepath.Join(t.TempDir(), "hits.tsv")
	data := hits.Header + "\n" +
		"s1\tA\t99.2\t400\t95\t380\t1e-100\t700\tA title\n" +
		"s1\tB\t95.0\t400\t90\t350\t1e-80\t500\tB title\n" +
		"s2\tC\t97.5\t400\t88\t360\t1e-90\t650\tC title\n"
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	samples, err := LoadSamples(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].ID != "s1" || samples[0].Pident != 99.2 || samples[0].Qcov != 95 {
		t.Errorf("s1 = %+v", samples[0])
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]Sample{
		{ID: "s1", Pident: 90, Qcov: 80},
		{ID: "s2", Pident: 100, Qcov: 90},
		{ID: "s3", Pident: math.NaN(), Qcov: 100},
	})
	if stats.N != 3 {
		t.Errorf("N = %d, want 3", stats.N)
	}
	if stats.MeanPident != 95 {
		t.Errorf("mean identity = %v, want 95 (NaN skipped)", stats.MeanPident)
	}
	if stats.MeanQcov != 90 {
		t.Errorf("mean coverage = %v, want 90", stats.MeanQcov)
	}
}

func TestPlotCurveWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "curve.png")
	opt := DefaultOptions(2)
	opt.Step = 5
	if err := PlotCurve(file, testSamples(), 80, opt); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty plot file")
	}
}
