package archiver

import (
	"fmt"
)

// Returned when a series archive grows past Settings.MaxArchiveSize.
type ErrArchiveTooLarge struct {
	Series string
	Limit  int64
}

func (e ErrArchiveTooLarge) Error() string {
	return fmt.Sprintf(
		"Archive for %s exceeds the %d byte limit.",
		e.Series,
		e.Limit)
}

// Returned when none of the objects in a series could be fetched.
type ErrEmptyArchive string

func (e ErrEmptyArchive) Error() string {
	return fmt.Sprintf("No objects could be fetched for %s.", string(e))
}

// Returned by Verify when an uploaded archive does not match its package
// record.
type ErrMismatch struct {
	Key      string
	Field    string
	Expected string
	Got      string
}

func (e ErrMismatch) Error() string {
	return fmt.Sprintf(
		"%s: %s is %s, the package record has %s.",
		e.Key,
		e.Field,
		e.Got,
		e.Expected)
}
