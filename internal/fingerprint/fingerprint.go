// Package fingerprint derives content digests used to detect edits to node
// text after it was reviewed.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
)

// Fingerprint is the lowercase hex SHA-256 digest of a node's raw text.
type Fingerprint string

// Absent is the fingerprint of a node whose text does not exist. It never
// equals the fingerprint of real content, including empty content.
const Absent Fingerprint = ""

// Of digests raw bytes. Two inputs share a fingerprint iff they are
// byte-identical.
func Of(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// IsAbsent reports whether f is the missing-content sentinel.
func (f Fingerprint) IsAbsent() bool { return f == Absent }

// Short returns the first 12 hex digits for display.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Engine computes fingerprints of stored node text.
type Engine struct {
	store content.Store
}

// NewEngine creates an engine reading through store.
func NewEngine(store content.Store) *Engine {
	return &Engine{store: store}
}

// Fingerprint returns the digest of the node's current text, or Absent when
// the text is missing. Other read failures are returned unchanged.
func (e *Engine) Fingerprint(ctx context.Context, storyID, nodeID string) (Fingerprint, error) {
	data, err := e.store.Read(ctx, storyID, nodeID)
	if err != nil {
		if errors.Is(err, content.ErrContentMissing) {
			return Absent, nil
		}
		return Absent, err
	}
	return Of(data), nil
}
