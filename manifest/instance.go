package manifest

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The canonical instance columns, in the order they are written.
var InstanceColumns = []string{
	"file_name",
	"file_size",
	"md5sum",
	"case_id",
	"study_id",
	"series_id",
	"instance_id",
	"storage_urls",
}

// One imaging file.
type Instance struct {
	FileName   string
	FileSize   int64
	MD5Sum     string
	CaseID     string
	StudyID    string
	SeriesID   string
	InstanceID string

	// Where the object lives in the source bucket, exactly as submitted.
	// Organization specific rewrites are applied when it is fetched.
	StorageURL string
}

// The series this instance belongs to.
func (i *Instance) Series() Series {
	return Series{
		CaseID:   i.CaseID,
		StudyID:  i.StudyID,
		SeriesID: i.SeriesID,
	}
}

func (i *Instance) row() []string {
	return []string{
		i.FileName,
		strconv.FormatInt(i.FileSize, 10),
		i.MD5Sum,
		i.CaseID,
		i.StudyID,
		i.SeriesID,
		i.InstanceID,
		i.StorageURL,
	}
}

// Parses a file size. Submissions exported from spreadsheets carry
// thousands separators ("1,234,567") which are removed before parsing.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsRune(s, ',') {
		s = strings.ReplaceAll(s, ",", "")
	}
	// Integer columns with blanks are sometimes exported as floats.
	s = strings.TrimSuffix(s, ".0")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid size %q", s)
	} else if n < 0 {
		return 0, errors.Errorf("negative size %q", s)
	}
	return n, nil
}

// Converts a table that already uses the canonical column names into
// instances. Extra columns are ignored.
func InstancesFromTable(t *Table) ([]Instance, error) {
	if err := t.Require(InstanceColumns...); err != nil {
		return nil, err
	}
	idx := make([]int, len(InstanceColumns))
	for i, name := range InstanceColumns {
		idx[i] = t.Column(name)
	}
	out := make([]Instance, 0, len(t.Rows))
	for n, row := range t.Rows {
		size, err := ParseSize(row[idx[1]])
		if err != nil {
			return nil, ErrBadRow{Source: t.Source, Row: n + 1, Err: err}
		}
		out = append(out, Instance{
			FileName:   row[idx[0]],
			FileSize:   size,
			MD5Sum:     row[idx[2]],
			CaseID:     row[idx[3]],
			StudyID:    row[idx[4]],
			SeriesID:   row[idx[5]],
			InstanceID: row[idx[6]],
			StorageURL: row[idx[7]],
		})
	}
	return out, nil
}

// Reads a canonical instance table such as a series manifest.
func ReadInstances(source string, r io.Reader) ([]Instance, error) {
	t, err := ReadTable(source, r)
	if err != nil {
		return nil, err
	}
	return InstancesFromTable(t)
}

// Writes the header followed by one row per instance.
func WriteInstances(w io.Writer, instances []Instance) error {
	cw := newWriter(w)
	if err := cw.Write(InstanceColumns); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return AppendInstances(w, instances)
}

// Writes rows without a header, for appending to an existing manifest.
func AppendInstances(w io.Writer, instances []Instance) error {
	cw := newWriter(w)
	for i := range instances {
		if err := cw.Write(instances[i].row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
