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

	"github.com/spf13/cobra"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/dbs"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List configured reference databases",
	Long: `List configured reference databases

Each registered key is printed with its resolved BLAST index prefix,
FASTA file and taxonomy table; artifacts missing on disk are flagged.
The builtin keys (gg2, silva, ncbi) resolve even without a config file;
a config at ~/.microseq/microseq.toml (or $MICROSEQ_CONFIG, or
--db-config) overrides them field-wise.

With --init, a starter config with the builtin entries is written to
the resolved config location.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		configFile := getFlagString(cmd, "db-config")

		if getFlagBool(cmd, "init") {
			path, err := dbs.InitConfig(configFile)
			checkError(err)
			if opt.Verbose {
				log.Infof("starter config written to %s", path)
			}
			return
		}

		registry, err := dbs.Load(configFile)
		checkError(err)

		if opt.Verbose {
			if registry.Path != "" {
				log.Infof("config: %s", registry.Path)
			} else {
				log.Info("config: builtin defaults (no config file)")
			}
			log.Infof("database home: %s", registry.DBHome)
		}

		for _, key := range registry.Keys() {
			db, err := registry.Get(key)
			checkError(err)

			fmt.Fprintf(os.Stdout, "%s\n", key)
			printDBPath("blast db", db.BlastDB, dbs.BlastDBExists(db.BlastDB))
			printDBPath("fasta", db.Fasta, dbs.FileExists(db.Fasta))
			printDBPath("taxonomy", db.Taxonomy, dbs.FileExists(db.Taxonomy))
		}
	},
}

func printDBPath(label, path string, present bool) {
	if path == "" {
		fmt.Fprintf(os.Stdout, "  %-9s -\n", label)
		return
	}
	mark := ""
	if !present {
		mark = "  (missing)"
	}
	fmt.Fprintf(os.Stdout, "  %-9s %s%s\n", label, path, mark)
}

func init() {
	utilsCmd.AddCommand(databasesCmd)

	databasesCmd.Flags().StringP("db-config", "", "",
		formatFlagUsage(`Database registry config file. The default is ~/.microseq/microseq.toml or $MICROSEQ_CONFIG.`))

	databasesCmd.Flags().BoolP("init", "", false,
		formatFlagUsage(`Write a starter config with the builtin databases and exit.`))
}
