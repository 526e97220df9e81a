package index

import "errors"

// ErrNameNotFound is returned by Update and Remove when no entry exists
// under the given name.
var ErrNameNotFound = errors.New("index: name not found")

// BuildError reports a rejected build or mutation. The index keeps its
// previous state when a BuildError is returned.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return "index build: " + e.Reason
}
