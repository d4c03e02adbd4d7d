package sequester

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/manifest"
)

// The access class a case is assigned in the master classification file.
type Dataset string

const (
	Open   Dataset = "Open"
	Seq    Dataset = "Seq"
	Ignore Dataset = "Ignore"

	// Cases absent from the master file.
	Unclassified Dataset = ""
)

// Maps case_id to its dataset. Loaded once per run and never modified.
type Classification map[string]Dataset

// Returns the dataset for a case. Values other than Open, Seq and Ignore
// are treated as unclassified.
func (c Classification) Lookup(caseID string) Dataset {
	switch d := c[caseID]; d {
	case Open, Seq, Ignore:
		return d
	default:
		return Unclassified
	}
}

// Reads a master classification table with case_ids and dataset columns.
// When a case is listed more than once the last row wins.
func ReadClassification(source string, r io.Reader) (Classification, error) {
	t, err := manifest.ReadTable(source, r)
	if err != nil {
		return nil, err
	}
	if err := t.Require("case_ids", "dataset"); err != nil {
		return nil, err
	}
	c := make(Classification, len(t.Rows))
	for _, row := range t.Rows {
		id := t.Get(row, "case_ids")
		if id == "" {
			continue
		}
		c[id] = Dataset(t.Get(row, "dataset"))
	}
	return c, nil
}

func LoadClassification(path string) (Classification, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading classification")
	}
	defer fd.Close()
	return ReadClassification(path, fd)
}
