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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

// vsearchAligner runs vsearch --usearch_global against a FASTA database.
// vsearch writes usearch-style blast6 output (the 12 standard BLAST
// columns, no qlen/qcovhsp/stitle), so the backend converts the raw table
// into the canonical schema afterwards: qlen from the query file read up
// front, qcovhsp recomputed from the alignment length, stitle falling
// back to the subject label. Progress comes from polling the growing raw
// output file, since vsearch offers nothing to stream.
type vsearchAligner struct{}

func (v *vsearchAligner) Name() string { return "vsearch" }

func (v *vsearchAligner) args(opt *SearchOptions, rawFile string) []string {
	p := &opt.Profile
	args := []string{
		"--usearch_global", opt.QueryFile,
		"--db", opt.Database.Fasta,
		"--blast6out", rawFile,
		"--id", strconv.FormatFloat(p.MinIdentity/100, 'g', -1, 64),
		"--maxaccepts", strconv.Itoa(p.MaxTargets),
		"--threads", strconv.Itoa(p.Threads),
	}
	if p.MinQueryCov > 0 {
		args = append(args, "--query_cov", strconv.FormatFloat(p.MinQueryCov/100, 'g', -1, 64))
	}
	return args
}

func (v *vsearchAligner) Search(ctx context.Context, opt *SearchOptions) error {
	if opt.Database.Fasta == "" {
		return fmt.Errorf("no FASTA file for database %s, vsearch needs one", opt.Database.Name)
	}
	if _, err := os.Stat(opt.Database.Fasta); err != nil {
		return fmt.Errorf("database FASTA not found: %s", opt.Database.Fasta)
	}
	if _, err := exec.LookPath("vsearch"); err != nil {
		return fmt.Errorf("vsearch not found in PATH")
	}

	total, qlens, err := countQueries(opt.QueryFile)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(opt.OutFile), 0755); err != nil {
		return errors.Wrapf(err, "create output directory for %s", opt.OutFile)
	}

	rawFile := opt.OutFile + ".b6" + tmpFileExt
	cmd := exec.CommandContext(ctx, "vsearch", v.args(opt, rawFile)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if opt.OnProgress != nil {
		opt.OnProgress(0)
	}
	if err = cmd.Start(); err != nil {
		return errors.Wrap(err, "start vsearch")
	}

	// poll the raw output between progress updates; also where the
	// cancellation check lives while vsearch runs
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go v.poll(ctx, stop, stopped, rawFile, total, opt.OnProgress)

	waitErr := cmd.Wait()
	close(stop)
	<-stopped

	if ctx.Err() != nil {
		os.Remove(rawFile)
		return ErrCancelled
	}
	if waitErr != nil {
		os.Remove(rawFile)
		return wrapWaitError("vsearch", waitErr, stderr.Bytes())
	}

	tmpFile := opt.OutFile + tmpFileExt
	if err = v.convert(rawFile, tmpFile, qlens); err != nil {
		os.Remove(tmpFile)
		return err
	}
	os.Remove(rawFile)

	if err = os.Rename(tmpFile, opt.OutFile); err != nil {
		return errors.Wrapf(err, "rename %s", tmpFile)
	}
	if opt.OnProgress != nil {
		opt.OnProgress(100)
	}
	return nil
}

func (v *vsearchAligner) poll(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}, rawFile string, total int, onProgress ProgressFunc) {
	defer close(stopped)
	if onProgress == nil {
		<-stop
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	lastPct := 0
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pct := countDistinctQueries(rawFile) * 100 / total
			if pct > 99 {
				pct = 99
			}
			if pct != lastPct {
				lastPct = pct
				onProgress(pct)
			}
		}
	}
}

func countDistinctQueries(file string) int {
	fh, err := os.Open(file)
	if err != nil {
		return 0
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	seen := make(map[string]interface{}, 64)
	var line string
	var i int
	for scanner.Scan() {
		line = scanner.Text()
		for i = 0; i < len(line); i++ {
			if line[i] == '\t' {
				break
			}
		}
		if i > 0 && i < len(line) {
			seen[line[:i]] = struct{}{}
		}
	}
	return len(seen)
}

// nColsBlast6 is the column count of usearch-style blast6 output.
const nColsBlast6 = 12

// convert rewrites a blast6 table into the canonical 9-column schema.
func (v *vsearchAligner) convert(rawFile, tmpFile string, qlens map[string]int) error {
	fh, err := os.Open(rawFile)
	if err != nil {
		return errors.Wrapf(err, "read %s", rawFile)
	}
	defer fh.Close()

	w, err := os.Create(tmpFile)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmpFile)
	}
	outfh := bufio.NewWriterSize(w, os.Getpagesize())
	fmt.Fprintln(outfh, hits.Header)

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	n := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		n++
		h, err := convertBlast6(strings.Split(line, "\t"), qlens)
		if err != nil {
			w.Close()
			return errors.Wrapf(err, "%s: line %d", rawFile, n)
		}
		fmt.Fprintln(outfh, h.Row())
	}
	if err = scanner.Err(); err != nil {
		w.Close()
		return errors.Wrapf(err, "read %s", rawFile)
	}
	if err = outfh.Flush(); err != nil {
		w.Close()
		return errors.Wrapf(err, "write %s", tmpFile)
	}
	return w.Close()
}

// convertBlast6 maps one 12-column blast6 row to the canonical schema.
// vsearch reports no qlen, coverage or subject title: qlen comes from the
// query sequences themselves, qcovhsp = 100*length/qlen (capped at 100),
// and the subject label stands in for the title. usearch_global computes
// no E-values either; the -1/0 placeholders pass through unchanged.
func convertBlast6(fields []string, qlens map[string]int) (hits.Hit, error) {
	if len(fields) != nColsBlast6 {
		return hits.Hit{}, fmt.Errorf("%d columns, expecting %d", len(fields), nColsBlast6)
	}

	h := hits.Hit{
		Query:    fields[0],
		Subject:  fields[1],
		Pident:   hits.CoerceFloat(fields[2]),
		AlnLen:   hits.CoerceInt(fields[3]),
		Evalue:   hits.CoerceFloat(fields[10]),
		Bitscore: hits.CoerceFloat(fields[11]),
		Stitle:   fields[1],
	}
	h.Qlen = qlens[h.Query]
	if h.Qlen > 0 {
		h.Qcovhsp = 100 * float64(h.AlnLen) / float64(h.Qlen)
		if h.Qcovhsp > 100 {
			h.Qcovhsp = 100
		}
	} else {
		h.Qcovhsp = math.NaN()
	}
	return h, nil
}
