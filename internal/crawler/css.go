package crawler

import (
	"regexp"
	"sort"
	"strings"
)

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"]*))\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// ExtractURLReferences returns the raw references found in url(...) and
// @import "..." forms of cssText, in source order, each once. Inline data
// URIs and empty references are skipped.
func ExtractURLReferences(cssText string) []string {
	type match struct {
		pos int
		ref string
	}

	var matches []match
	collect := func(re *regexp.Regexp) {
		for _, idx := range re.FindAllStringSubmatchIndex(cssText, -1) {
			for g := 1; g*2+1 < len(idx); g++ {
				start, end := idx[g*2], idx[g*2+1]
				if start < 0 {
					continue
				}
				matches = append(matches, match{pos: idx[0], ref: cssText[start:end]})
				break
			}
		}
	}
	collect(cssURLPattern)
	collect(cssImportPattern)

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	seen := make(map[string]struct{}, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		ref := strings.TrimSpace(m.ref)
		if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") || strings.HasPrefix(ref, "#") {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	return refs
}
