package normalize

import (
	"fmt"
	"strings"
)

// Returned when more than one file matches an organization's manifest
// patterns. Picking one would silently drop data, so the run stops.
type ErrAmbiguousInput struct {
	Dir     string
	Matches []string
}

func (e ErrAmbiguousInput) Error() string {
	return fmt.Sprintf(
		"Only one manifest may exist in %s, found %d: %s",
		e.Dir,
		len(e.Matches),
		strings.Join(e.Matches, ", "))
}

// Returned when no file matches an organization's manifest patterns. The
// value is the submission directory.
type ErrNoManifest string

func (e ErrNoManifest) Error() string {
	return fmt.Sprintf("No manifest was found in %s.", string(e))
}
