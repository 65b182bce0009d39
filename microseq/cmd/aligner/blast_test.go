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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

func TestBlastArgs(t *testing.T) {
	opt := &SearchOptions{
		QueryFile: "reads.fasta",
		Database:  Database{Name: "gg2", BlastDB: "/dbs/gg2/gg2"},
		OutFile:   "hits.tsv",
		Profile: Profile{
			Algorithm:   Megablast,
			MinIdentity: 97,
			MinQueryCov: 80,
			MaxTargets:  5,
			Threads:     4,
		},
	}
	b := &blastnAligner{task: "megablast"}
	got := strings.Join(b.args(opt), " ")
	expected := "-task megablast -query reads.fasta -db /dbs/gg2/gg2 " +
		"-max_target_seqs 5 -perc_identity 97 -qcov_hsp_perc 80 " +
		"-outfmt " + hits.OutFmt + " -num_threads 4"
	if got != expected {
		t.Errorf("args:\n  got:       %s\n  expecting: %s", got, expected)
	}
}

func TestBlastEnv(t *testing.T) {
	env := blastEnv([]string{"PATH=/usr/bin", "BLASTDB_LMDB_MAP_SIZE=1000000"})
	joined := strings.Join(env, " ")
	if strings.Contains(joined, "BLASTDB_LMDB_MAP_SIZE") {
		t.Error("map-size override must be dropped")
	}
	if !strings.Contains(joined, "BLASTDB_LMDB=0") {
		t.Error("BLASTDB_LMDB should default to 0")
	}

	// an explicit caller setting wins
	env = blastEnv([]string{"BLASTDB_LMDB=1"})
	joined = strings.Join(env, " ")
	if !strings.Contains(joined, "BLASTDB_LMDB=1") || strings.Contains(joined, "BLASTDB_LMDB=0") {
		t.Errorf("explicit BLASTDB_LMDB overridden: %s", joined)
	}
}

func TestStreamWritesHeaderAndRows(t *testing.T) {
	raw := "S1\tA1\t99.000\t300\t95\t290\t1e-10\t200\tLactobacillus sp.\n" +
		"# some banner line\n" +
		"S2\tB1\t98.000\t310\t90\t280\t1e-09\t190\tBacillus sp.\n"

	tmpFile := filepath.Join(t.TempDir(), "hits.tsv.tmp")
	var ticks []int
	b := &blastnAligner{task: "megablast"}
	err := b.stream(context.Background(), strings.NewReader(raw), tmpFile, 2,
		func(pct int) { ticks = append(ticks, pct) })
	if err != nil {
		t.Fatalf("stream: %s", err)
	}

	hs, err := hits.ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("parse streamed table: %s", err)
	}
	if len(hs) != 2 {
		t.Fatalf("got %d hits, expecting 2", len(hs))
	}
	if hs[0].Query != "S1" || hs[1].Query != "S2" {
		t.Errorf("row order changed: %s, %s", hs[0].Query, hs[1].Query)
	}

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), hits.Header+"\n") {
		t.Error("streamed table must start with the canonical header")
	}

	if len(ticks) == 0 {
		t.Fatal("no progress reported")
	}
	for _, pct := range ticks {
		if pct < 0 || pct > 99 {
			t.Errorf("streaming progress %d out of [0,99]", pct)
		}
	}
}

func TestStreamZeroHits(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "hits.tsv.tmp")
	b := &blastnAligner{task: "blastn"}
	if err := b.stream(context.Background(), strings.NewReader(""), tmpFile, 3, nil); err != nil {
		t.Fatalf("stream: %s", err)
	}

	hs, err := hits.ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("a zero-hit table must stay parseable: %s", err)
	}
	if len(hs) != 0 {
		t.Errorf("got %d hits, expecting 0", len(hs))
	}
}

func TestStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tmpFile := filepath.Join(t.TempDir(), "hits.tsv.tmp")
	b := &blastnAligner{task: "megablast"}
	err := b.stream(ctx, strings.NewReader("S1\tA1\t99\t300\t95\t290\t1e-10\t200\tt\n"), tmpFile, 1, nil)
	if err != ErrCancelled {
		t.Errorf("got %v, expecting ErrCancelled", err)
	}
}
