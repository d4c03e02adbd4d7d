package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Returned when the requested key does not exist. The value is the
// "bucket/key" that was requested.
type ErrNotFound string

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s was not found.", string(e))
}

// Returned when the bucket itself does not exist.
type ErrNoSuchBucket string

func (e ErrNoSuchBucket) Error() string {
	return fmt.Sprintf("Bucket %s does not exist.", string(e))
}

// Returned when the store reports a different checksum than the data that
// was sent.
type ErrChecksumMismatch struct {
	Bucket   string
	Key      string
	Expected string
	Returned string
}

func (e ErrChecksumMismatch) Error() string {
	return fmt.Sprintf(
		"%s/%s was stored with md5 %s, expected %s.",
		e.Bucket,
		e.Key,
		e.Returned,
		e.Expected)
}

// Returned when fewer or more bytes than advertised were read.
type ErrInvalidLength struct {
	Expected int64
	Got      int64
}

func (e ErrInvalidLength) Error() string {
	return fmt.Sprintf(
		"Expected %d bytes but read %d.",
		e.Expected,
		e.Got)
}

// Returns true if retrying the request can not change the outcome. This is
// used as the permanent() check for backoff.Retry.
func IsPermanent(err error) bool {
	switch errors.Cause(err).(type) {
	case ErrNotFound, ErrNoSuchBucket:
		return true
	default:
		return false
	}
}

// Returns true if err (or its cause) is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(ErrNotFound)
	return ok
}
