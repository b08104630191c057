package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier for users, roles and
// permissions.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether id is a well-formed identifier produced by New.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(id)))
	return err == nil
}
