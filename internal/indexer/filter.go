package indexer

import (
	"path"
	"slices"
	"strings"

	"github.com/bull/docshub/internal/extract"
)

// pathFilter selects documentation files by include and skip patterns.
// Patterns are case-insensitive. A pattern ending in "/" matches a directory
// at any depth; a pattern containing "/" is matched against the whole path;
// any other pattern is matched against the file name.
type pathFilter struct {
	include []string
	skip    []string
}

func newPathFilter(include, skip []string) pathFilter {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, p := range in {
			out[i] = strings.ToLower(strings.TrimPrefix(p, "/"))
		}
		return out
	}
	return pathFilter{include: lower(include), skip: lower(skip)}
}

// Match reports whether p should be indexed.
func (f pathFilter) Match(p string) bool {
	lp := strings.ToLower(p)
	if !documentation(lp) {
		return false
	}
	if slices.ContainsFunc(f.skip, func(pattern string) bool { return matchPattern(pattern, lp) }) {
		return false
	}
	return slices.ContainsFunc(f.include, func(pattern string) bool { return matchPattern(pattern, lp) })
}

func matchPattern(pattern, p string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return strings.HasPrefix(p, dir+"/") || strings.Contains(p, "/"+dir+"/")
	}
	if strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, p)
		return ok
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}

// documentation reports whether p has a documentation format. Extensionless
// READMEs count as plain text.
func documentation(p string) bool {
	if extract.FormatFromPath(p) != extract.FormatUnknown {
		return true
	}
	base := path.Base(p)
	return path.Ext(base) == "" && strings.HasPrefix(base, "readme")
}

// selectFiles filters entries, drops oversized files and caps the result.
// Root READMEs come first, then shallower paths, then lexical order.
func selectFiles(entries []FileEntry, f pathFilter, maxFiles, maxBytes int) (selected []FileEntry, oversized int) {
	for _, e := range entries {
		if !f.Match(e.Path) {
			continue
		}
		if maxBytes > 0 && e.Size > maxBytes {
			oversized++
			continue
		}
		selected = append(selected, e)
	}

	slices.SortFunc(selected, func(a, b FileEntry) int {
		if ra, rb := rootReadme(a.Path), rootReadme(b.Path); ra != rb {
			if ra {
				return -1
			}
			return 1
		}
		if da, db := strings.Count(a.Path, "/"), strings.Count(b.Path, "/"); da != db {
			return da - db
		}
		return strings.Compare(a.Path, b.Path)
	})

	if maxFiles > 0 && len(selected) > maxFiles {
		selected = selected[:maxFiles]
	}
	return selected, oversized
}

func rootReadme(p string) bool {
	return !strings.Contains(p, "/") && strings.HasPrefix(strings.ToLower(p), "readme")
}
