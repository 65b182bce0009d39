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

	"github.com/jose-cantu/MicroSeq/microseq/cmd/besthit"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

var bestHitsCmd = &cobra.Command{
	Use:   "best-hits",
	Short: "Collapse a hit table to one authoritative row per sample",
	Long: `Collapse a hit table to one authoritative row per sample

For each sample, candidate rows below -p/--min-pident are pruned first;
when none survive, all candidates are kept, so every sample always gets
exactly one output row, confident or not. The winner is then the row
with the lowest e-value, ties broken by deeper taxonomy, then higher
bit score. The full comparison chain is a total order, so the result
does not depend on input row order.

Input is a 9- or 10-column hit table ("-" for stdin), ideally the output
of "microseq add-taxonomy" so the taxonomy-depth tie-break has lineages
to work with. Samples are reported in natural sort order.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		minPident := getFlagPercent(cmd, "min-pident")
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

		rows, err := taxdb.ParseAnnotatedFile(args[0])
		checkError(err)
		if len(rows) == 0 {
			checkError(fmt.Errorf("no hits in %s, nothing to collapse", args[0]))
		}

		best, err := besthit.ResolveAll(rows, minPident, normalize)
		checkError(err)

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		checkError(taxdb.WriteAnnotatedTable(outfh, best))

		if opt.Verbose {
			log.Infof("%d hit(s) collapsed into %d sample row(s)", len(rows), len(best))
		}
	},
}

func init() {
	RootCmd.AddCommand(bestHitsCmd)

	bestHitsCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	bestHitsCmd.Flags().Float64P("min-pident", "p", besthit.DefaultMinPident,
		formatFlagUsage(`Minimum percent identity for a candidate row. Samples where no row qualifies fall back to all their rows.`))

	bestHitsCmd.Flags().StringP("id-normaliser", "n", "none",
		formatFlagUsage(`Sample ID normalizer applied before grouping: none, strip_suffix or strip_suffix_simple.`))
}
