// Package content stores the raw text of story nodes as opaque byte blobs.
package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrContentMissing is matched by errors reporting a node whose text is absent.
var ErrContentMissing = errors.New("content missing")

// ContentMissingError reports that a node has no stored text.
type ContentMissingError struct {
	StoryID string
	NodeID  string
}

func (e *ContentMissingError) Error() string {
	return fmt.Sprintf("content missing for %s/%s", e.StoryID, e.NodeID)
}

// Unwrap lets errors.Is match ErrContentMissing.
func (e *ContentMissingError) Unwrap() error { return ErrContentMissing }

// Store reads and writes node text at a stable per-node location.
type Store interface {
	// Read returns the node's text. A missing node yields an error matching
	// ErrContentMissing.
	Read(ctx context.Context, storyID, nodeID string) ([]byte, error)
	Write(ctx context.Context, storyID, nodeID string, data []byte) error
}

// Binder is implemented by stores that resolve node text through the
// manifest's per-node text locators.
type Binder interface {
	Bind(storyID string, refs map[string]string)
}

// LocatorFunc returns the text locators a story's manifest declares, keyed
// by node id.
type LocatorFunc func(ctx context.Context, storyID string) (map[string]string, error)

// Locating is implemented by stores that can look up a story's locators on
// demand instead of waiting for Bind.
type Locating interface {
	SetLocator(fn LocatorFunc)
}

// DefaultTextRef is the locator used for nodes that do not declare one.
func DefaultTextRef(nodeID string) string {
	return "nodes/" + nodeID + ".txt"
}
