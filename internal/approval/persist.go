package approval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/dfbr/choose-your-own-adventure-world/internal/utils"
)

// Persister loads and replaces the whole state document. Save must either
// replace the document completely or leave the previous one in place.
type Persister interface {
	// Load returns the saved document, or nil when none exists yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// FilePersister keeps the state document in a single JSON file.
type FilePersister struct {
	path string
	lock *flock.Flock
}

// NewFilePersister creates a persister for the document at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the document location.
func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read approval state: %w", err)
	}
	return data, nil
}

// Save replaces the document atomically.
func (p *FilePersister) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	if err := utils.WriteFileAtomic(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write approval state: %w", err)
	}
	return nil
}

// Lock takes the advisory session lock next to the document. It fails with
// ErrLocked when another process holds it.
func (p *FilePersister) Lock() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the session lock.
func (p *FilePersister) Unlock() error {
	return p.lock.Unlock()
}

// MemoryPersister keeps the document in memory. SetSaveError makes
// subsequent saves fail, for exercising failure paths.
type MemoryPersister struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
	saves   int
}

// NewMemoryPersister creates a persister preloaded with data, which may be nil.
func NewMemoryPersister(data []byte) *MemoryPersister {
	return &MemoryPersister{data: append([]byte(nil), data...)}
}

func (p *MemoryPersister) Load(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, nil
	}
	return append([]byte(nil), p.data...), nil
}

func (p *MemoryPersister) Save(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.data = append([]byte(nil), data...)
	p.saves++
	return nil
}

// SetSaveError sets the error returned by Save; nil restores normal saves.
func (p *MemoryPersister) SetSaveError(err error) {
	p.mu.Lock()
	p.saveErr = err
	p.mu.Unlock()
}

// Data returns a copy of the last saved document.
func (p *MemoryPersister) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// Saves returns the number of successful saves.
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}
