package manifest

import (
	"path"
	"path/filepath"
	"strings"
)

// Identifies one series by its place in the case/study/series tree.
type Series struct {
	CaseID   string
	StudyID  string
	SeriesID string
}

// Returns an error if an id can not safely be used as a single path
// component.
func CheckID(field, id string) error {
	switch {
	case id == "", id == ".", id == "..":
	case strings.ContainsAny(id, "/\\\x00"):
	default:
		return nil
	}
	return ErrInvalidID{Field: field, Value: id}
}

// Validates every id in the series.
func (s Series) Validate() error {
	if err := CheckID("case_id", s.CaseID); err != nil {
		return err
	} else if err := CheckID("study_id", s.StudyID); err != nil {
		return err
	}
	return CheckID("series_id", s.SeriesID)
}

// The manifest path relative to the batch directory, slash separated:
// cases/{case}/{study}/{series}.tsv
func (s Series) ManifestPath() string {
	return path.Join("cases", s.CaseID, s.StudyID, s.SeriesID+".tsv")
}

// The logical archive name recorded as a package's file_name:
// {case}/{study}/{series}.zip
func (s Series) ArchiveName() string {
	return path.Join(s.CaseID, s.StudyID, s.SeriesID+".zip")
}

// The destination bucket key of the series archive.
func (s Series) ArchiveKey() string {
	return "zip/" + s.ArchiveName()
}

// The name of the package record file relative to the batch directory.
func (s Series) RecordPath() string {
	return path.Join("packages", s.SeriesID+".txt")
}

func (s Series) String() string {
	return s.CaseID + "/" + s.StudyID + "/" + s.SeriesID
}

// Recovers the series from a manifest path. Anything may precede the
// cases directory, so both relative and absolute paths are accepted.
func ParseSeriesPath(p string) (Series, error) {
	parts := strings.Split(filepath.ToSlash(p), "/")
	n := len(parts)
	if n < 4 || parts[n-4] != "cases" || !strings.HasSuffix(parts[n-1], ".tsv") {
		return Series{}, ErrBadSeriesPath(p)
	}
	s := Series{
		CaseID:   parts[n-3],
		StudyID:  parts[n-2],
		SeriesID: strings.TrimSuffix(parts[n-1], ".tsv"),
	}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Recovers the series from a package file_name ({case}/{study}/{series}.zip).
func ParseArchiveName(name string) (Series, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 {
		return Series{}, ErrInvalidID{Field: "file_name", Value: name}
	}
	s := Series{
		CaseID:   parts[0],
		StudyID:  parts[1],
		SeriesID: strings.TrimSuffix(parts[2], ".zip"),
	}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}
