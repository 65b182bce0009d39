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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"

	"github.com/jose-cantu/MicroSeq/microseq/cmd/hits"
)

var mergeHitsCmd = &cobra.Command{
	Use:   "merge-hits",
	Short: "Concatenate per-sample hit tables into one",
	Long: `Concatenate per-sample hit tables into one

Inputs may be files, directories (searched recursively for *.tsv) or "-"
for stdin. The output carries exactly one header line, the canonical
one; header lines of the inputs are dropped. Comment lines starting
with "#" pass through from the first input only.

Rows are copied as text: merging never reformats numeric fields.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		pattern, err := regexp.Compile(getFlagString(cmd, "file-regexp"))
		if err != nil {
			checkError(fmt.Errorf("invalid value of --file-regexp: %s", err))
		}

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		if len(args) == 0 {
			checkError(fmt.Errorf("hit table files or directories needed"))
		}

		// expand directories
		files := make([]string, 0, len(args))
		for _, arg := range args {
			if isStdin(arg) {
				files = append(files, arg)
				continue
			}
			info, err := os.Stat(arg)
			checkError(err)
			if !info.IsDir() {
				files = append(files, arg)
				continue
			}
			found, err := getFileListFromDir(arg, pattern, opt.NumCPUs)
			checkError(err)
			if len(found) == 0 {
				log.Warningf("no files matching %s in %s", pattern, arg)
			}
			files = append(files, found...)
		}
		if opt.Verbose {
			log.Infof("%d input file(s) to merge", len(files))
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

		fmt.Fprintln(outfh, hits.Header)

		var rows int
		for i, file := range files {
			n, err := appendHitRows(outfh, file, i == 0)
			checkError(err)
			rows += n
		}

		if opt.Verbose {
			log.Infof("%d row(s) merged from %d file(s)", rows, len(files))
		}
	},
}

// appendHitRows copies the data rows of one hit table into w, skipping
// its header. Comment lines pass through only for the first file. The
// returned count is data rows only.
func appendHitRows(w *bufio.Writer, file string, keepComments bool) (int, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	n := 0
	first := true
	var line string
	for scanner.Scan() {
		line = strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '#' {
			if keepComments {
				fmt.Fprintln(w, line)
			}
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(line, hits.Columns[0]+"\t") {
				continue
			}
		}
		fmt.Fprintln(w, line)
		n++
	}
	return n, scanner.Err()
}

func init() {
	utilsCmd.AddCommand(mergeHitsCmd)

	mergeHitsCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	mergeHitsCmd.Flags().StringP("file-regexp", "", `\.tsv$`,
		formatFlagUsage(`Regular expression matching hit table file names when a directory is given.`))
}
