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

package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/aligner"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search query sequences against a reference database",
	Long: `Search query sequences against a reference database

The query file should be (gzipped) FASTA or FASTQ.

Adaptive search:
  With the default megablast aligner, a fast first pass runs, and a
  sensitive blastn pass automatically replaces it when the first pass
  finds nothing, its result table is unreadable, or its best hit misses
  the close-hit gate (--retry-pident/--retry-qcov, both 90 by default).
  The gate only decides whether searching harder is worthwhile; whether
  a hit counts as a confident match is decided by the stricter report
  thresholds (-p/--min-pident, -c/--min-qcov). Explicitly choosing the
  blastn or vsearch aligner disables the second pass.

Relaxed search:
  With -r/--relaxed, the aligner itself filters at loose floors
  (--search-pident/--search-qcov) and the complete table is kept next to
  the output file with a "_full" suffix, for cutoff tuning with
  "microseq utils sweep-cutoffs". The report thresholds are then applied
  afterwards to produce the output table. Without -r/--relaxed, the
  report thresholds are applied by the aligner directly.

Output format:
  Tab-delimited format with 9 columns:

    1. qseqid,   Query (sample) identifier.
    2. sseqid,   Subject accession.
    3. pident,   Percentage of identical matches.
    4. qlen,     Query sequence length.
    5. qcovhsp,  Query coverage (percentage) per HSP.
    6. length,   Alignment length.
    7. evalue,   Expect value.
    8. bitscore, Bit score.
    9. stitle,   Subject title.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		if outFile == "" || isStdin(outFile) {
			checkError(fmt.Errorf("flag -o/--out-file needed, the aligner writes to a regular file"))
		}

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		verbose := opt.Verbose
		outputLog := opt.Verbose || opt.Log2File

		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------

		if len(args) != 1 {
			checkError(fmt.Errorf("one query sequence file needed, %d given", len(args)))
		}
		queryFile := args[0]

		algorithm, err := aligner.ParseAlgorithm(getFlagString(cmd, "aligner"))
		checkError(err)

		th := hits.Thresholds{
			MinPident: getFlagPercent(cmd, "min-pident"),
			MinQcov:   getFlagPercent(cmd, "min-qcov"),
		}
		gate := aligner.Gate{
			MinPident: getFlagPercent(cmd, "retry-pident"),
			MinQcov:   getFlagPercent(cmd, "retry-qcov"),
		}
		maxTargets := getFlagPositiveInt(cmd, "max-targets")
		relaxed := getFlagBool(cmd, "relaxed")
		logMissingFile := getFlagString(cmd, "log-missing")

		profile := aligner.Profile{
			Algorithm:   algorithm,
			MinIdentity: th.MinPident,
			MinQueryCov: th.MinQcov,
			MaxTargets:  maxTargets,
			Threads:     opt.NumCPUs,
		}
		if relaxed {
			profile.MinIdentity = getFlagPercent(cmd, "search-pident")
			profile.MinQueryCov = getFlagPercent(cmd, "search-qcov")
			if profile.MinIdentity > th.MinPident {
				checkError(fmt.Errorf("the value of flag --search-pident (%v) should be <= that of -p/--min-pident (%v): search loosely, report strictly", profile.MinIdentity, th.MinPident))
			}
			if profile.MinQueryCov > th.MinQcov {
				checkError(fmt.Errorf("the value of flag --search-qcov (%v) should be <= that of -c/--min-qcov (%v): search loosely, report strictly", profile.MinQueryCov, th.MinQcov))
			}
		}

		db, _ := resolveDatabase(cmd)

		// ---------------------------------------------------------------

		if outputLog {
			log.Infof("microseq v%s", VERSION)
			log.Info()
			log.Infof("searching %s against database %s with %s, %d threads",
				queryFile, db.Name, algorithm, opt.NumCPUs)
			if relaxed {
				log.Infof("  search floors: pident >= %v, qcovhsp >= %v (relaxed)",
					profile.MinIdentity, profile.MinQueryCov)
			}
			log.Infof("  report thresholds: pident >= %v, qcovhsp >= %v",
				th.MinPident, th.MinQcov)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// the aligner backends write plain text themselves
		if !relaxed && strings.HasSuffix(outFile, ".gz") {
			checkError(fmt.Errorf(`a ".gz" out file needs -r/--relaxed, the aligner itself writes plain text`))
		}
		searchOut := outFile
		if relaxed {
			name, ext, _ := filepathTrimExtension(outFile, nil)
			if ext == "" {
				ext = ".tsv"
			}
			searchOut = name + "_full" + ext
		}

		pbs, bar, onProgress := searchProgressBar(verbose && !opt.Log2File)
		sopt := &aligner.SearchOptions{
			QueryFile:  queryFile,
			Database:   db,
			OutFile:    searchOut,
			Profile:    profile,
			OnProgress: onProgress,
		}

		result, err := aligner.Search(ctx, sopt, gate)
		if bar != nil {
			bar.SetTotal(100, true)
			pbs.Wait()
		}
		if stderrors.Is(err, aligner.ErrCancelled) {
			log.Warning("search cancelled")
			os.Exit(130)
		}
		checkError(err)

		// ---------------------------------------------------------------

		if outputLog && result.Sensitive {
			log.Infof("  sensitive pass ran: %s", result.RetryReason)
		}

		final := result.Hits
		if relaxed {
			final = hits.Filter(result.Hits, th)
			outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
			checkError(err)
			checkError(hits.WriteTable(outfh, final))
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()

			if outputLog {
				log.Infof("  full table with %d hit(s) saved to %s", len(result.Hits), searchOut)
			}
		}

		total, matched, missing := missingQueries(queryFile, result.Hits)
		if logMissingFile != "" && len(missing) > 0 {
			checkError(appendLines(logMissingFile, missing))
		}
		if outputLog {
			log.Infof("  %d hit(s) of %d / %d queries saved to %s", len(final), matched, total, outFile)
			if len(missing) > 0 {
				log.Infof("  %d query(s) with no hits", len(missing))
				if logMissingFile != "" {
					log.Infof("  missing query IDs appended to %s", logMissingFile)
				}
			}
		}
	},
}

// searchProgressBar builds the percent-scale search bar and the callback
// feeding it. All three values are nil when show is false.
func searchProgressBar(show bool) (*mpb.Progress, *mpb.Bar, aligner.ProgressFunc) {
	if !show {
		return nil, nil, nil
	}
	pbs := mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	bar := pbs.AddBar(100,
		mpb.PrependDecorators(
			decor.Name("searching: ", decor.WC{W: len("searching: "), C: decor.DindentRight}),
			decor.Name("", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
			decor.EwmaETA(decor.ET_STYLE_GO, 3),
			decor.OnComplete(decor.Name(""), ". done"),
		),
	)

	timeLast := time.Now()
	onProgress := func(pct int) {
		// a retried run restarts the percentage, the bar just follows
		bar.EwmaSetCurrent(int64(pct), time.Since(timeLast))
		timeLast = time.Now()
	}
	return pbs, bar, onProgress
}

// missingQueries reads the query file back and splits its record IDs into
// those with and without hits. A query file that disappeared mid-run is
// not worth failing over at this point, it only degrades the summary.
func missingQueries(queryFile string, hs []hits.Hit) (total, matched int, missing []string) {
	seen := make(map[string]interface{}, len(hs))
	for i := range hs {
		seen[hs[i].Query] = struct{}{}
	}

	reader, err := fastx.NewReader(nil, queryFile, "")
	if err != nil {
		return 0, len(seen), nil
	}
	defer reader.Close()

	var record *fastx.Record
	for {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return total, len(seen), missing
		}
		total++
		if _, ok := seen[string(record.ID)]; !ok {
			missing = append(missing, string(record.ID))
		}
	}
	return total, len(seen), missing
}

// appendLines appends lines to a file, creating it when needed.
func appendLines(file string, lines []string) error {
	dir := filepath.Dir(file)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	fh, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err = fmt.Fprintln(fh, line); err != nil {
			fh.Close()
			return err
		}
	}
	return fh.Close()
}

func init() {
	RootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Out file. Required: the external aligner writes to a regular file. A ".gz" suffix is supported with -r/--relaxed, where this file is written by microseq itself.`))

	searchCmd.Flags().StringP("aligner", "a", "megablast",
		formatFlagUsage(`Aligner backend: megablast (fast, with automatic sensitive retry), blastn (sensitive) or vsearch.`))

	searchCmd.Flags().Float64P("min-pident", "p", 97,
		formatFlagUsage(`Minimum percent identity for a hit to be reported.`))

	searchCmd.Flags().Float64P("min-qcov", "c", 80,
		formatFlagUsage(`Minimum query coverage (percentage) for a hit to be reported.`))

	searchCmd.Flags().Float64P("retry-pident", "", 90,
		formatFlagUsage(`Close-hit gate on percent identity. A fast-pass best hit below this triggers the sensitive pass.`))

	searchCmd.Flags().Float64P("retry-qcov", "", 90,
		formatFlagUsage(`Close-hit gate on query coverage. A fast-pass best hit below this triggers the sensitive pass.`))

	searchCmd.Flags().IntP("max-targets", "m", 5,
		formatFlagUsage(`Maximum subject sequences reported per query.`))

	searchCmd.Flags().BoolP("relaxed", "r", false,
		formatFlagUsage(`Search at loose floors and keep the unfiltered table next to the out file with a "_full" suffix, then apply the report thresholds.`))

	searchCmd.Flags().Float64P("search-pident", "", 80,
		formatFlagUsage(`Search-time percent identity floor, only used with -r/--relaxed.`))

	searchCmd.Flags().Float64P("search-qcov", "", 0,
		formatFlagUsage(`Search-time query coverage floor, only used with -r/--relaxed.`))

	searchCmd.Flags().StringP("log-missing", "", "",
		formatFlagUsage(`Append the IDs of queries that produced no hits to this file.`))

	addDatabaseFlags(searchCmd)
}
