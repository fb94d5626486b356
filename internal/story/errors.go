package story

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by errors for stories whose manifest is absent.
	ErrNotFound = errors.New("story not found")

	// ErrMalformed is matched by errors for manifests that cannot be parsed.
	ErrMalformed = errors.New("malformed story manifest")

	// ErrRootMissing signals a traversal whose root is not part of the graph.
	// It is recoverable: the traversal result is simply empty.
	ErrRootMissing = errors.New("root node missing")
)

// NotFoundError reports a missing story manifest, or a node the manifest
// does not define when NodeID is set.
type NotFoundError struct {
	StoryID string
	NodeID  string
	Path    string
}

func (e *NotFoundError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q not found in story %q", e.NodeID, e.StoryID)
	}
	return fmt.Sprintf("story %q not found (no manifest at %s)", e.StoryID, e.Path)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// MalformedError reports a manifest that exists but does not fit the
// node/choice shapes.
type MalformedError struct {
	StoryID string
	Reason  string
	Err     error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("story %q: malformed manifest: %s", e.StoryID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is match ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Unwrap exposes the underlying decode error, if any.
func (e *MalformedError) Unwrap() error { return e.Err }
