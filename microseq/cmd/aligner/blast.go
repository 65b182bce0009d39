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
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

// blastnAligner runs blastn with -task megablast or -task blastn.
// Results are streamed from stdout instead of letting blastn write the
// file itself: streaming drives the progress callback (one tick per query
// finishing its first row) and lets the cancellation check run between
// rows.
type blastnAligner struct {
	task string
}

func (b *blastnAligner) Name() string { return b.task }

func (b *blastnAligner) args(opt *SearchOptions) []string {
	p := &opt.Profile
	return []string{
		"-task", b.task,
		"-query", opt.QueryFile,
		"-db", opt.Database.BlastDB,
		"-max_target_seqs", strconv.Itoa(p.MaxTargets),
		"-perc_identity", strconv.FormatFloat(p.MinIdentity, 'g', -1, 64),
		"-qcov_hsp_perc", strconv.FormatFloat(p.MinQueryCov, 'g', -1, 64),
		"-outfmt", hits.OutFmt,
		"-num_threads", strconv.Itoa(p.Threads),
	}
}

// blastEnv keeps the parent environment but pins BLASTDB_LMDB off
// (unless the caller set it explicitly) and drops any map-size override
// that could re-activate LMDB. LMDB-backed databases are prone to
// map-size crashes on network filesystems.
func blastEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	hasLMDB := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "BLASTDB_LMDB_MAP_SIZE=") {
			continue
		}
		if strings.HasPrefix(kv, "BLASTDB_LMDB=") {
			hasLMDB = true
		}
		out = append(out, kv)
	}
	if !hasLMDB {
		out = append(out, "BLASTDB_LMDB=0")
	}
	return out
}

func (b *blastnAligner) Search(ctx context.Context, opt *SearchOptions) error {
	if opt.Database.BlastDB == "" {
		return fmt.Errorf("no BLAST database path for database %s", opt.Database.Name)
	}
	if _, err := exec.LookPath("blastn"); err != nil {
		return fmt.Errorf("blastn not found in PATH, is BLAST+ installed?")
	}
	if _, err := os.Stat(opt.QueryFile); err != nil {
		return errors.Wrap(err, "query file")
	}

	total, _, err := countQueries(opt.QueryFile)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(opt.OutFile), 0755); err != nil {
		return errors.Wrapf(err, "create output directory for %s", opt.OutFile)
	}

	cmd := exec.CommandContext(ctx, "blastn", b.args(opt)...)
	cmd.Env = blastEnv(os.Environ())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "pipe blastn stdout")
	}

	if opt.OnProgress != nil {
		opt.OnProgress(0)
	}
	if err = cmd.Start(); err != nil {
		return errors.Wrap(err, "start blastn")
	}

	tmpFile := opt.OutFile + tmpFileExt
	streamErr := b.stream(ctx, stdout, tmpFile, total, opt.OnProgress)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		os.Remove(tmpFile)
		return ErrCancelled
	}
	if waitErr != nil {
		os.Remove(tmpFile)
		return wrapWaitError("blastn", waitErr, stderr.Bytes())
	}
	if streamErr != nil {
		os.Remove(tmpFile)
		return streamErr
	}

	if err = os.Rename(tmpFile, opt.OutFile); err != nil {
		return errors.Wrapf(err, "rename %s", tmpFile)
	}
	if opt.OnProgress != nil {
		opt.OnProgress(100)
	}
	return nil
}

// stream copies data rows from the child's stdout into the temporary
// table file, header first. Completion is estimated from the number of
// distinct queries seen so far and capped at 99; the final 100 is
// reported only after a clean exit and rename.
func (b *blastnAligner) stream(ctx context.Context, r io.Reader, tmpFile string, total int, onProgress ProgressFunc) error {
	w, err := os.Create(tmpFile)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmpFile)
	}
	outfh := bufio.NewWriterSize(w, os.Getpagesize())
	fmt.Fprintln(outfh, hits.Header)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	seen := make(map[string]interface{}, total)
	lastPct := 0
	var line string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			outfh.Flush()
			w.Close()
			return ErrCancelled
		default:
		}

		line = scanner.Text()
		if line == "" || line[0] == '#' { // banner/comment, not a data row
			continue
		}
		fmt.Fprintln(outfh, line)

		if onProgress == nil {
			continue
		}
		if i := strings.IndexByte(line, '\t'); i > 0 {
			seen[line[:i]] = struct{}{}
		}
		pct := len(seen) * 100 / total
		if pct > 99 { // keep 100 for the end
			pct = 99
		}
		if pct != lastPct {
			lastPct = pct
			onProgress(pct)
		}
	}
	serr := scanner.Err()

	if err = outfh.Flush(); err != nil {
		w.Close()
		return errors.Wrapf(err, "write %s", tmpFile)
	}
	if err = w.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpFile)
	}
	if serr != nil && ctx.Err() == nil {
		return errors.Wrap(serr, "read blastn output")
	}
	return nil
}
