package content

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory for tests and tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	texts map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{texts: make(map[string]map[string][]byte)}
}

// Read returns a copy of the stored bytes.
func (s *MemoryStore) Read(ctx context.Context, storyID, nodeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.texts[storyID][nodeID]
	if !ok {
		return nil, &ContentMissingError{StoryID: storyID, NodeID: nodeID}
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data.
func (s *MemoryStore) Write(ctx context.Context, storyID, nodeID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, ok := s.texts[storyID]
	if !ok {
		nodes = make(map[string][]byte)
		s.texts[storyID] = nodes
	}
	nodes[nodeID] = append([]byte(nil), data...)
	return nil
}

// Delete removes a node's text. Missing entries are ignored.
func (s *MemoryStore) Delete(storyID, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.texts[storyID], nodeID)
}
