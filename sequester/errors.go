package sequester

import (
	"fmt"
)

// Returned when a case is classified Open or Seq but its organization has
// no authz scopes to assign.
type ErrMissingScope struct {
	Organization string
	Dataset      Dataset
}

func (e ErrMissingScope) Error() string {
	return fmt.Sprintf(
		"Organization %s has no authz scope for %s packages.",
		e.Organization,
		e.Dataset)
}
