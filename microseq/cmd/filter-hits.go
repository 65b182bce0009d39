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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

var filterHitsCmd = &cobra.Command{
	Use:   "filter-hits",
	Short: "Apply report thresholds to a hit table",
	Long: `Apply report thresholds to a hit table

Rows whose percent identity or query coverage fall below the report
thresholds are dropped; the rest are written unchanged. A NaN value in
either column never passes.

With --status-file, a per-row report is written alongside: PASS/FAIL
plus which criterion was missed, useful for eyeballing why samples
drop out before committing to a cutoff.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		statusFile := getFlagString(cmd, "status-file")
		unique := getFlagBool(cmd, "unique")
		th := hits.Thresholds{
			MinPident: getFlagPercent(cmd, "min-pident"),
			MinQcov:   getFlagPercent(cmd, "min-qcov"),
		}
		normalize, err := hits.Normalizer(getFlagString(cmd, "id-normaliser"))
		checkError(err)

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		if len(args) != 1 {
			checkError(fmt.Errorf("one hit table needed, %d given", len(args)))
		}

		hs, err := hits.ParseFile(args[0])
		checkError(err)

		passed := hits.Filter(hs, th)

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		checkError(hits.WriteTable(outfh, passed))

		if statusFile != "" {
			sfh, sgw, sw, err := outStream(statusFile, strings.HasSuffix(statusFile, ".gz"), opt.CompressionLevel)
			checkError(err)
			checkError(hits.WriteStatusTable(sfh, hs, th))
			sfh.Flush()
			if sgw != nil {
				sgw.Close()
			}
			sw.Close()
		}

		if opt.Verbose {
			log.Infof("%d of %d hit(s) passed pident >= %v and qcovhsp >= %v",
				len(passed), len(hs), th.MinPident, th.MinQcov)
			if unique {
				log.Infof("%d distinct sample(s) among the passing hits", hits.CountUnique(passed, normalize))
			}
		}
	},
}

func init() {
	utilsCmd.AddCommand(filterHitsCmd)

	filterHitsCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	filterHitsCmd.Flags().Float64P("min-pident", "p", 97,
		formatFlagUsage(`Minimum percent identity.`))

	filterHitsCmd.Flags().Float64P("min-qcov", "c", 80,
		formatFlagUsage(`Minimum query coverage (percentage).`))

	filterHitsCmd.Flags().StringP("status-file", "", "",
		formatFlagUsage(`Write a per-row PASS/FAIL report with the missed criteria to this file.`))

	filterHitsCmd.Flags().BoolP("unique", "u", false,
		formatFlagUsage(`Log the number of distinct (normalized) sample IDs among the passing hits.`))

	filterHitsCmd.Flags().StringP("id-normaliser", "n", "none",
		formatFlagUsage(`Sample ID normalizer used with -u/--unique: none, strip_suffix or strip_suffix_simple.`))
}
