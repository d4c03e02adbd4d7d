package normalize

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Expands patterns relative to dir. A pattern starting with "**/" matches
// its remainder against the base name of every file below dir. Results
// are de-duplicated and sorted.
func glob(dir string, patterns []string) ([]string, error) {
	found := make(map[string]struct{})
	for _, pattern := range patterns {
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
			err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				} else if d.IsDir() {
					return nil
				}
				if m, _ := filepath.Match(rest, d.Name()); m {
					found[p] = struct{}{}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			found[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(found))
	for p := range found {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
