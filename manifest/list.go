package manifest

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"
)

// The name of the series list written by the grouper.
const SeriesListName = "packages.txt"

// Reads packages.txt, one manifest path per line. Blank lines are
// skipped and surrounding whitespace is removed.
func ReadSeriesList(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, scanner.Err()
}

// Writes packages.txt.
func WriteSeriesList(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range paths {
		bw.WriteString(p)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Resolves a packages.txt entry against the batch directory. Relative
// entries ("./cases/..." or "cases/...") are relative to the batch, while
// absolute entries are used as is.
func ResolveSeriesPath(batchDir, entry string) string {
	p := filepath.FromSlash(entry)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(batchDir, p)
}
