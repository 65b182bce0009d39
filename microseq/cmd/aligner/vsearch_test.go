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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

func TestVsearchArgs(t *testing.T) {
	opt := &SearchOptions{
		QueryFile: "reads.fasta",
		Database:  Database{Name: "gg2", Fasta: "/dbs/gg2/gg2.fasta"},
		Profile: Profile{
			Algorithm:   Vsearch,
			MinIdentity: 80,
			MinQueryCov: 0,
			MaxTargets:  5,
			Threads:     2,
		},
	}
	v := &vsearchAligner{}
	got := strings.Join(v.args(opt, "raw.b6"), " ")
	expected := "--usearch_global reads.fasta --db /dbs/gg2/gg2.fasta " +
		"--blast6out raw.b6 --id 0.8 --maxaccepts 5 --threads 2"
	if got != expected {
		t.Errorf("args:\n  got:       %s\n  expecting: %s", got, expected)
	}

	// a positive coverage floor is forwarded
	opt.Profile.MinQueryCov = 80
	got = strings.Join(v.args(opt, "raw.b6"), " ")
	if !strings.HasSuffix(got, "--query_cov 0.8") {
		t.Errorf("coverage floor not forwarded: %s", got)
	}
}

func TestConvertBlast6(t *testing.T) {
	fields := strings.Split("S1\tGG2_0001\t97.5\t250\t5\t1\t1\t250\t10\t260\t-1\t0", "\t")
	h, err := convertBlast6(fields, map[string]int{"S1": 300})
	if err != nil {
		t.Fatalf("convert: %s", err)
	}
	if h.Query != "S1" || h.Subject != "GG2_0001" {
		t.Errorf("ids: %s, %s", h.Query, h.Subject)
	}
	if h.Pident != 97.5 || h.AlnLen != 250 {
		t.Errorf("pident/alnlen: %v, %d", h.Pident, h.AlnLen)
	}
	if h.Qlen != 300 {
		t.Errorf("qlen: %d, expecting 300 from the query file", h.Qlen)
	}
	expected := 100 * 250.0 / 300.0
	if math.Abs(h.Qcovhsp-expected) > 1e-9 {
		t.Errorf("qcovhsp: %v, expecting %v", h.Qcovhsp, expected)
	}
	if h.Stitle != "GG2_0001" {
		t.Errorf("stitle should fall back to the subject label: %q", h.Stitle)
	}
	if h.Evalue != -1 || h.Bitscore != 0 {
		t.Errorf("usearch placeholders must pass through: %v, %v", h.Evalue, h.Bitscore)
	}
}

func TestConvertBlast6CoverageCap(t *testing.T) {
	// alignment longer than the query (gaps): coverage caps at 100
	fields := strings.Split("S1\tA\t99\t320\t0\t2\t1\t300\t1\t320\t-1\t0", "\t")
	h, err := convertBlast6(fields, map[string]int{"S1": 300})
	if err != nil {
		t.Fatal(err)
	}
	if h.Qcovhsp != 100 {
		t.Errorf("qcovhsp: %v, expecting the 100 cap", h.Qcovhsp)
	}
}

func TestConvertBlast6UnknownQuery(t *testing.T) {
	fields := strings.Split("S9\tA\t99\t250\t0\t0\t1\t250\t1\t250\t-1\t0", "\t")
	h, err := convertBlast6(fields, map[string]int{"S1": 300})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(h.Qcovhsp) {
		t.Errorf("unknown query length should give NaN coverage, got %v", h.Qcovhsp)
	}
}

func TestConvertBlast6WrongColumns(t *testing.T) {
	if _, err := convertBlast6(strings.Split("a\tb\tc", "\t"), nil); err == nil {
		t.Error("expecting an error for a short row")
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	rawFile := filepath.Join(dir, "raw.b6")
	raw := "S1\tA1\t99.1\t250\t2\t0\t1\t250\t1\t250\t-1\t0\n" +
		"S2\tB1\t88.0\t200\t24\t1\t1\t200\t5\t205\t-1\t0\n"
	if err := os.WriteFile(rawFile, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	outFile := filepath.Join(dir, "hits.tsv")
	v := &vsearchAligner{}
	if err := v.convert(rawFile, outFile, map[string]int{"S1": 300, "S2": 250}); err != nil {
		t.Fatalf("convert: %s", err)
	}

	hs, err := hits.ParseFile(outFile)
	if err != nil {
		t.Fatalf("parse converted table: %s", err)
	}
	if len(hs) != 2 {
		t.Fatalf("got %d hits, expecting 2", len(hs))
	}
	if hs[1].Qlen != 250 || hs[1].AlnLen != 200 {
		t.Errorf("row 2 lengths: %d, %d", hs[1].Qlen, hs[1].AlnLen)
	}
}

func TestCountDistinctQueries(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "raw.b6")
	raw := "S1\ta\nS1\tb\nS2\tc\n"
	if err := os.WriteFile(file, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	if n := countDistinctQueries(file); n != 2 {
		t.Errorf("got %d distinct queries, expecting 2", n)
	}
	if n := countDistinctQueries(filepath.Join(dir, "missing")); n != 0 {
		t.Errorf("missing file should count 0, got %d", n)
	}
}
