package manifest

import (
	"fmt"
)

// Returned when a table is missing a column that is required to build the
// requested record type.
type ErrMissingColumn struct {
	Source string
	Column string
}

func (e ErrMissingColumn) Error() string {
	return fmt.Sprintf("%s is missing required column %s.", e.Source, e.Column)
}

// Returned when an identifier can not be used as a path component: it is
// empty, contains a path separator, or is a relative directory reference.
type ErrInvalidID struct {
	Field string
	Value string
}

func (e ErrInvalidID) Error() string {
	return fmt.Sprintf("Invalid %s: %q.", e.Field, e.Value)
}

// Returned when a path does not have the cases/{case}/{study}/{series}.tsv
// shape that series manifests are written with.
type ErrBadSeriesPath string

func (e ErrBadSeriesPath) Error() string {
	return fmt.Sprintf("%s is not a series manifest path.", string(e))
}

// Returned when a row can not be decoded. Row numbers start at 1 for the
// first line after the header.
type ErrBadRow struct {
	Source string
	Row    int
	Err    error
}

func (e ErrBadRow) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Source, e.Row, e.Err.Error())
}

func (e ErrBadRow) Unwrap() error {
	return e.Err
}
