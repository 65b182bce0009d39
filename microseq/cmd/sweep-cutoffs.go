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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/sweep"
)

var sweepCutoffsCmd = &cobra.Command{
	Use:   "sweep-cutoffs",
	Short: "Predict passing samples across identity/coverage cutoff grids",
	Long: `Predict passing samples across identity/coverage cutoff grids

Given a relaxed search result (a full, unfiltered hit table, e.g.
hits_full.tsv from "microseq search -r") and a target sample count, the
whole identity/coverage grid is scanned and the cutoff pairs whose
passing-sample count lands closest to the target are reported, ties
broken toward stricter cutoffs:

  98% 85% -> 52
  98% 84% -> 53
  ...

No search is re-run: the prediction only counts each sample's best
observed hit against every grid cell.

Input is either a raw hit table, collapsed here to the best row per
sample (highest identity, ties by bit score), or an already collapsed
sample_id/best_pident/best_qcov table, detected from the header.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		plotFile := getFlagString(cmd, "plot")
		plotCov := getFlagNonNegativeInt(cmd, "plot-coverage")

		target := getFlagInt(cmd, "target")
		if target < 0 {
			checkError(fmt.Errorf("flag -t/--target needed"))
		}
		sopt := sweep.DefaultOptions(target)
		sopt.Step = getFlagPositiveInt(cmd, "step")
		sopt.Top = getFlagPositiveInt(cmd, "top")
		sopt.IDMin = getFlagNonNegativeInt(cmd, "id-min")
		sopt.IDMax = getFlagNonNegativeInt(cmd, "id-max")
		sopt.CovMin = getFlagNonNegativeInt(cmd, "cov-min")
		sopt.CovMax = getFlagNonNegativeInt(cmd, "cov-max")
		checkError(sopt.Check())

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		if len(args) != 1 {
			checkError(fmt.Errorf("one hit or sample table needed, %d given", len(args)))
		}

		samples, err := sweep.LoadSamples(args[0])
		checkError(err)
		if len(samples) == 0 {
			checkError(fmt.Errorf("no samples in %s, nothing to sweep", args[0]))
		}

		if opt.Verbose {
			stats := sweep.Summarize(samples)
			log.Infof("%d sample(s): best pident %.2f +- %.2f, best qcov %.2f +- %.2f",
				stats.N, stats.MeanPident, stats.StdevPident, stats.MeanQcov, stats.StdevQcov)
		}

		cutoffs, err := sweep.Suggest(samples, sopt)
		checkError(err)

		for _, c := range cutoffs {
			fmt.Fprintf(os.Stdout, "%d%% %d%% -> %d\n", c.Identity, c.Coverage, c.Count)
		}

		if outFile != "" {
			outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
			checkError(err)
			fmt.Fprintln(outfh, "identity\tcoverage\tcount")
			for _, c := range cutoffs {
				fmt.Fprintf(outfh, "%d\t%d\t%d\n", c.Identity, c.Coverage, c.Count)
			}
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}

		if plotFile != "" {
			checkError(sweep.PlotCurve(plotFile, samples, plotCov, sopt))
			if opt.Verbose {
				log.Infof("cutoff curve saved to %s", plotFile)
			}
		}
	},
}

func init() {
	utilsCmd.AddCommand(sweepCutoffsCmd)

	sweepCutoffsCmd.Flags().IntP("target", "t", -1,
		formatFlagUsage(`Desired number of passing samples. Required.`))

	sweepCutoffsCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Also save the suggested cutoffs as a 3-column table, supports a ".gz" suffix.`))

	sweepCutoffsCmd.Flags().IntP("step", "", 1,
		formatFlagUsage(`Grid step size in percent.`))

	sweepCutoffsCmd.Flags().IntP("top", "", 10,
		formatFlagUsage(`Number of suggested cutoff pairs to report.`))

	sweepCutoffsCmd.Flags().IntP("id-min", "", 80,
		formatFlagUsage(`Lower bound of the identity grid.`))

	sweepCutoffsCmd.Flags().IntP("id-max", "", 100,
		formatFlagUsage(`Upper bound of the identity grid.`))

	sweepCutoffsCmd.Flags().IntP("cov-min", "", 0,
		formatFlagUsage(`Lower bound of the coverage grid.`))

	sweepCutoffsCmd.Flags().IntP("cov-max", "", 100,
		formatFlagUsage(`Upper bound of the coverage grid.`))

	sweepCutoffsCmd.Flags().StringP("plot", "", "",
		formatFlagUsage(`Save a passing-count vs identity-cutoff curve to this image file (png, svg, pdf).`))

	sweepCutoffsCmd.Flags().IntP("plot-coverage", "", 80,
		formatFlagUsage(`Coverage cutoff the plotted curve is drawn at.`))
}
