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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/aligner"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/besthit"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search, annotate and collapse in one go",
	Long: `Search, annotate and collapse in one go

The three pipeline stages of microseq run back to back on one query
file, leaving every intermediate table in the output directory:

  stage 1/3: search        -> hits.tsv      (+ hits_full.tsv with -r/--relaxed)
  stage 2/3: add-taxonomy  -> hits_tax.tsv
  stage 3/3: best-hits     -> best_hits.tsv

All stage parameters match the flags of the standalone commands.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outDir := getFlagString(cmd, "out-dir")
		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir needed"))
		}
		force := getFlagBool(cmd, "force")

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
		fillSpecies := getFlagBool(cmd, "fill-species")
		speciesPident := getFlagPercent(cmd, "species-pident")
		normalize, err := hits.Normalizer(getFlagString(cmd, "id-normaliser"))
		checkError(err)

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
			if profile.MinIdentity > th.MinPident || profile.MinQueryCov > th.MinQcov {
				checkError(fmt.Errorf("search floors (%v/%v) should be <= report thresholds (%v/%v): search loosely, report strictly",
					profile.MinIdentity, profile.MinQueryCov, th.MinPident, th.MinQcov))
			}
		}

		db, taxonomyFile := resolveDatabase(cmd)
		if taxonomyFile == "" {
			checkError(fmt.Errorf("no taxonomy table: give -d/--database or -T/--taxonomy"))
		}

		makeOutDir(outDir, force, "out-dir", verbose)
		hitsFile := filepath.Join(outDir, "hits.tsv")
		taxFile := filepath.Join(outDir, "hits_tax.tsv")
		bestFile := filepath.Join(outDir, "best_hits.tsv")

		if outputLog {
			log.Infof("microseq v%s", VERSION)
			log.Info()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// ---------------------------------------------------------------
		// stage 1/3: search

		if outputLog {
			log.Infof("stage 1/3: searching %s against database %s with %s, %d threads",
				queryFile, db.Name, algorithm, opt.NumCPUs)
		}
		timeStage := time.Now()

		searchOut := hitsFile
		if relaxed {
			searchOut = filepath.Join(outDir, "hits_full.tsv")
		}

		pbs, bar, onProgress := searchProgressBar(verbose && !opt.Log2File)
		result, err := aligner.Search(ctx, &aligner.SearchOptions{
			QueryFile:  queryFile,
			Database:   db,
			OutFile:    searchOut,
			Profile:    profile,
			OnProgress: onProgress,
		}, gate)
		if bar != nil {
			bar.SetTotal(100, true)
			pbs.Wait()
		}
		if stderrors.Is(err, aligner.ErrCancelled) {
			log.Warning("search cancelled")
			os.Exit(130)
		}
		checkError(err)

		searched := result.Hits
		if relaxed {
			searched = hits.Filter(result.Hits, th)
			outfh, gw, w, err := outStream(hitsFile, false, opt.CompressionLevel)
			checkError(err)
			checkError(hits.WriteTable(outfh, searched))
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}

		if outputLog {
			if result.Sensitive {
				log.Infof("  sensitive pass ran: %s", result.RetryReason)
			}
			log.Infof("  %d hit(s) saved to %s", len(searched), hitsFile)
			log.Infof("  done in %s", time.Since(timeStage))
		}
		if len(searched) == 0 {
			log.Warningf("no hits passed the report thresholds, stopping after stage 1")
			return
		}

		// ---------------------------------------------------------------
		// stage 2/3: add-taxonomy

		if outputLog {
			log.Info()
			log.Infof("stage 2/3: attaching taxonomy from %s", taxonomyFile)
		}
		timeStage = time.Now()

		table, err := taxdb.LoadTable(taxonomyFile, opt.NumCPUs)
		checkError(err)

		rows, unmatched := table.Join(searched)
		if fillSpecies {
			filled := taxdb.FillSpeciesAll(rows, speciesPident)
			if outputLog {
				log.Infof("  species filled from subject titles for %d row(s)", filled)
			}
		}

		outfh, gw, w, err := outStream(taxFile, false, opt.CompressionLevel)
		checkError(err)
		checkError(taxdb.WriteAnnotatedTable(outfh, rows))
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		w.Close()

		if outputLog {
			log.Infof("  %d row(s) annotated, %d without a taxonomy match, saved to %s",
				len(rows), unmatched, taxFile)
			log.Infof("  done in %s", time.Since(timeStage))
		}

		// ---------------------------------------------------------------
		// stage 3/3: best-hits

		if outputLog {
			log.Info()
			log.Infof("stage 3/3: collapsing to one hit per sample")
		}
		timeStage = time.Now()

		best, err := besthit.ResolveAll(rows, th.MinPident, normalize)
		checkError(err)

		outfh, gw, w, err = outStream(bestFile, false, opt.CompressionLevel)
		checkError(err)
		checkError(taxdb.WriteAnnotatedTable(outfh, best))
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		w.Close()

		if outputLog {
			log.Infof("  %d sample row(s) saved to %s", len(best), bestFile)
			log.Infof("  done in %s", time.Since(timeStage))
		}
	},
}

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("out-dir", "O", "",
		formatFlagUsage(`Output directory for all stage tables.`))

	runCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite an existing, non-empty output directory.`))

	runCmd.Flags().StringP("aligner", "a", "megablast",
		formatFlagUsage(`Aligner backend: megablast (fast, with automatic sensitive retry), blastn (sensitive) or vsearch.`))

	runCmd.Flags().Float64P("min-pident", "p", 97,
		formatFlagUsage(`Minimum percent identity for a hit to be reported.`))

	runCmd.Flags().Float64P("min-qcov", "c", 80,
		formatFlagUsage(`Minimum query coverage (percentage) for a hit to be reported.`))

	runCmd.Flags().Float64P("retry-pident", "", 90,
		formatFlagUsage(`Close-hit gate on percent identity. A fast-pass best hit below this triggers the sensitive pass.`))

	runCmd.Flags().Float64P("retry-qcov", "", 90,
		formatFlagUsage(`Close-hit gate on query coverage. A fast-pass best hit below this triggers the sensitive pass.`))

	runCmd.Flags().IntP("max-targets", "m", 5,
		formatFlagUsage(`Maximum subject sequences reported per query.`))

	runCmd.Flags().BoolP("relaxed", "r", false,
		formatFlagUsage(`Search at loose floors and keep the unfiltered table as hits_full.tsv, then apply the report thresholds.`))

	runCmd.Flags().Float64P("search-pident", "", 80,
		formatFlagUsage(`Search-time percent identity floor, only used with -r/--relaxed.`))

	runCmd.Flags().Float64P("search-qcov", "", 0,
		formatFlagUsage(`Search-time query coverage floor, only used with -r/--relaxed.`))

	runCmd.Flags().BoolP("fill-species", "s", false,
		formatFlagUsage(`Recover species names from subject titles when the lineage stops above species rank.`))

	runCmd.Flags().Float64P("species-pident", "", taxdb.DefaultSpeciesPident,
		formatFlagUsage(`Minimum percent identity before a subject title is trusted as a species label.`))

	runCmd.Flags().StringP("id-normaliser", "n", "none",
		formatFlagUsage(`Sample ID normalizer applied before grouping: none, strip_suffix or strip_suffix_simple.`))

	addDatabaseFlags(runCmd)
}
