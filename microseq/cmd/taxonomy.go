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
	"github.com/jose-cantu/MicroSeq/microseq/cmd/taxdb"
)

var addTaxonomyCmd = &cobra.Command{
	Use:   "add-taxonomy",
	Short: "Attach taxonomic lineages to a hit table",
	Long: `Attach taxonomic lineages to a hit table

Subject accessions are canonicalized before the lookup: gi|...|ref|ACC|
wrapping, SILVA .start.stop region suffixes and composite assembly IDs
(RS-GCF-000771715.1-... -> GCF_000771715) all reduce to the bare
accession the reference taxonomy is keyed by.

The join keeps every hit: rows without a taxonomy match get "NA" in the
taxonomy column and are reported as a summary count, not an error.

With --fill-species, lineages that stop above species rank gain a
species segment recovered from the subject title, but only when the
alignment identity is at least --species-pident.

Input is a 9-column hit table from "microseq search" ("-" for stdin);
output adds a 10th column, taxonomy.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		fillSpecies := getFlagBool(cmd, "fill-species")
		speciesPident := getFlagPercent(cmd, "species-pident")

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
		hitFile := args[0]

		_, taxonomyFile := resolveDatabase(cmd)
		if taxonomyFile == "" {
			checkError(fmt.Errorf("no taxonomy table: give -d/--database or -T/--taxonomy"))
		}

		if opt.Verbose {
			log.Infof("loading taxonomy table: %s", taxonomyFile)
		}
		table, err := taxdb.LoadTable(taxonomyFile, opt.NumCPUs)
		checkError(err)
		if opt.Verbose {
			log.Infof("  %d accession/lineage pairs loaded", len(table.Lineages))
		}

		hs, err := hits.ParseFile(hitFile)
		checkError(err)

		rows, unmatched := table.Join(hs)
		if fillSpecies {
			filled := taxdb.FillSpeciesAll(rows, speciesPident)
			if opt.Verbose {
				log.Infof("  species filled from subject titles for %d row(s)", filled)
			}
		}

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		checkError(taxdb.WriteAnnotatedTable(outfh, rows))

		if opt.Verbose {
			log.Infof("%d row(s) annotated, %d without a taxonomy match", len(rows), unmatched)
		}
	},
}

func init() {
	RootCmd.AddCommand(addTaxonomyCmd)

	addTaxonomyCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	addTaxonomyCmd.Flags().BoolP("fill-species", "s", false,
		formatFlagUsage(`Recover species names from subject titles when the lineage stops above species rank.`))

	addTaxonomyCmd.Flags().Float64P("species-pident", "", taxdb.DefaultSpeciesPident,
		formatFlagUsage(`Minimum percent identity before a subject title is trusted as a species label.`))

	addDatabaseFlags(addTaxonomyCmd)
}
