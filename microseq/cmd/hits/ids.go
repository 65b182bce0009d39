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

package hits

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// NormalizeFunc maps a raw query identifier to the sample name used for
// grouping and counting. Sanger runs commonly tag reads with plate well
// and primer suffixes that must be folded away before samples can be
// matched across tables.
type NormalizeFunc func(string) string

var (
	// _2024-01-31_B07_trimmed, _20240131_B07_trimmed, __B07_trimmed
	reWellSuffix = regexp.MustCompile(`_(?:(?:\d{4}-\d{2}-\d{2})|\d{8})?_[A-H]\d{2}_trimmed$`)
	// -1492R..., -1429R...
	rePrimerSuffix = regexp.MustCompile(`-\d{4}R.*$`)
)

var normalizers = map[string]NormalizeFunc{
	"none": func(s string) string { return s },
	"strip_suffix": func(s string) string {
		return rePrimerSuffix.ReplaceAllString(reWellSuffix.ReplaceAllString(s, ""), "")
	},
	"strip_suffix_simple": func(s string) string {
		return reWellSuffix.ReplaceAllString(s, "")
	},
}

// Normalizer returns the named ID normalizer. An empty name means "none".
func Normalizer(name string) (NormalizeFunc, error) {
	if name == "" {
		name = "none"
	}
	if f, ok := normalizers[name]; ok {
		return f, nil
	}
	names := make([]string, 0, len(normalizers))
	for n := range normalizers {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown id normalizer: %s (available: %s)",
		name, strings.Join(names, ", "))
}

// NormalizerNames lists the available normalizer names, sorted.
func NormalizerNames() []string {
	names := make([]string, 0, len(normalizers))
	for n := range normalizers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CountUnique returns the number of distinct normalized query identifiers.
func CountUnique(hs []Hit, normalize NormalizeFunc) int {
	if normalize == nil {
		normalize = normalizers["none"]
	}
	seen := make(map[string]interface{}, len(hs))
	for i := range hs {
		seen[normalize(hs[i].Query)] = struct{}{}
	}
	return len(seen)
}
