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

package taxdb

import (
	"regexp"
	"strings"
)

var (
	// SILVA decorates accessions with alignment regions: AB008209.1.1495.
	reSilvaRegion = regexp.MustCompile(`\.\d+\.\d+$`)

	// GenBank/RefSeq assembly accessions buried inside composite IDs,
	// e.g. RS-GCF-000771715.1-NZ-ADEY01000022.1-2 or GB_GCA_000008525.1.
	reAssemblyAcc = regexp.MustCompile(`(GC[AF])[-_](\d+)`)
)

// CanonicalAccession reduces a database-decorated subject identifier to the
// bare accession taxonomy tables are keyed by. In order: trailing pipes go,
// gi|...|ref|ACC| wrapping keeps only the last pipe field, description text
// after the first space goes, SILVA .start.stop region suffixes go, and if
// an assembly accession (GCF/GCA) is embedded anywhere in what remains it
// wins, normalized to the underscore form.
//
//	gi|343206285|ref|NR_044838.1|          -> NR_044838.1
//	AB008209.1.1495                        -> AB008209
//	RS-GCF-000771715.1-NZ-ADEY01000022.1-2 -> GCF_000771715
func CanonicalAccession(id string) string {
	id = strings.TrimRight(id, "|")
	if i := strings.LastIndexByte(id, '|'); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.IndexByte(id, ' '); i >= 0 {
		id = id[:i]
	}
	id = reSilvaRegion.ReplaceAllString(id, "")

	if m := reAssemblyAcc.FindStringSubmatch(id); m != nil {
		return m[1] + "_" + m[2]
	}
	return id
}
