package sequester

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/manifest"
)

// A set of study or case identifiers removed from every output regardless
// of classification. A nil Set is empty.
type Set map[string]struct{}

func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Reads the values of the first of columns present in the table. Empty
// values are ignored.
func ReadSet(source string, r io.Reader, columns ...string) (Set, error) {
	t, err := manifest.ReadTable(source, r)
	if err != nil {
		return nil, err
	}
	column := ""
	for _, c := range columns {
		if t.Has(c) {
			column = c
			break
		}
	}
	if column == "" {
		return nil, manifest.ErrMissingColumn{Source: source, Column: columns[0]}
	}
	s := make(Set, len(t.Rows))
	for _, row := range t.Rows {
		if v := t.Get(row, column); v != "" {
			s[v] = struct{}{}
		}
	}
	return s, nil
}

func loadSet(path string, columns ...string) (Set, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading exclusions")
	}
	defer fd.Close()
	return ReadSet(path, fd, columns...)
}

// Reads a study exclusion file (study_uid or study_id column). An empty
// path returns an empty set.
func LoadStudyExclusions(path string) (Set, error) {
	if path == "" {
		return nil, nil
	}
	return loadSet(path, "study_uid", "study_id")
}

// Reads a case exclusion file (case_ids or case_id column). An empty path
// returns an empty set.
func LoadCaseExclusions(path string) (Set, error) {
	if path == "" {
		return nil, nil
	}
	return loadSet(path, "case_ids", "case_id")
}
