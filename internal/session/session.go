// Package session assigns each allocator run a correlation ID so its log
// lines and exit-time analysis report can be tied back together, including
// across the rpcshim boundary where the interposer and the allocator
// process are not the same process.
package session

import "github.com/google/uuid"

// ID is a per-run correlation identifier.
type ID string

// New mints a fresh correlation ID.
func New() ID {
	return ID(uuid.NewString())
}

// Parse validates a correlation ID received over the wire (e.g. in an
// rpcshim request), rejecting anything that isn't a well-formed UUID so a
// malformed peer can't smuggle arbitrary strings into log fields.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return ID(u.String()), nil
}

func (id ID) String() string { return string(id) }
