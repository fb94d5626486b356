package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dfbr/choose-your-own-adventure-world/internal/pathutil"
	"github.com/dfbr/choose-your-own-adventure-world/internal/utils"
)

// errNoLocator marks a node whose id cannot name a default text file.
var errNoLocator = errors.New("no text locator")

// FileStore keeps node text in <root>/<storyID>/<textRef>.
// Locators come from Bind, or from the LocatorFunc the first time an
// unbound story is touched; nodes without one use DefaultTextRef.
type FileStore struct {
	mu     sync.RWMutex
	root   string
	refs   map[string]map[string]string
	locate LocatorFunc
}

// NewFileStore creates a store rooted at the stories directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		root: root,
		refs: make(map[string]map[string]string),
	}
}

// Root returns the stories directory.
func (s *FileStore) Root() string { return s.root }

// Bind registers the text locators declared by a story manifest.
// The map is copied.
func (s *FileStore) Bind(storyID string, refs map[string]string) {
	cp := make(map[string]string, len(refs))
	for k, v := range refs {
		if v != "" {
			cp[k] = v
		}
	}
	s.mu.Lock()
	s.refs[storyID] = cp
	s.mu.Unlock()
}

// SetLocator installs the lookup used for stories that were never bound.
func (s *FileStore) SetLocator(fn LocatorFunc) {
	s.mu.Lock()
	s.locate = fn
	s.mu.Unlock()
}

// refsFor returns the story's locators, asking the LocatorFunc once for a
// story that has none. A failed lookup is not cached.
func (s *FileStore) refsFor(ctx context.Context, storyID string) map[string]string {
	s.mu.RLock()
	refs, bound := s.refs[storyID]
	locate := s.locate
	s.mu.RUnlock()
	if bound || locate == nil {
		return refs
	}

	refs, err := locate(ctx, storyID)
	if err != nil {
		return nil
	}
	s.Bind(storyID, refs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[storyID]
}

// Path resolves the file holding a node's text.
func (s *FileStore) Path(storyID, nodeID string) (string, error) {
	return s.path(context.Background(), storyID, nodeID)
}

func (s *FileStore) path(ctx context.Context, storyID, nodeID string) (string, error) {
	if err := pathutil.ValidateID("story", storyID); err != nil {
		return "", err
	}
	ref, ok := s.refsFor(ctx, storyID)[nodeID]
	if !ok {
		if err := pathutil.ValidateID("node", nodeID); err != nil {
			return "", fmt.Errorf("%w: %w", errNoLocator, err)
		}
		ref = DefaultTextRef(nodeID)
	}
	return pathutil.SafeJoin(filepath.Join(s.root, storyID), ref)
}

// Read returns the raw bytes of a node's text. A node whose id cannot name
// a default text file and that declares no locator has no text.
func (s *FileStore) Read(ctx context.Context, storyID, nodeID string) ([]byte, error) {
	path, err := s.path(ctx, storyID, nodeID)
	if errors.Is(err, errNoLocator) {
		return nil, &ContentMissingError{StoryID: storyID, NodeID: nodeID}
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ContentMissingError{StoryID: storyID, NodeID: nodeID}
		}
		return nil, fmt.Errorf("read node text %s: %w", pathutil.RedactPath(path), err)
	}
	return data, nil
}

// Write replaces a node's text atomically.
func (s *FileStore) Write(ctx context.Context, storyID, nodeID string, data []byte) error {
	path, err := s.path(ctx, storyID, nodeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create node directory: %w", err)
	}

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write node text: %w", err)
	}
	return nil
}
