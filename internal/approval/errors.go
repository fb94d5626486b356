package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is matched by errors from failed state document writes.
	ErrPersistence = errors.New("approval state not persisted")
	// ErrCorrupt is matched when the state document cannot be decoded.
	ErrCorrupt = errors.New("approval state document is corrupt")
	// ErrLocked is returned when another process holds the state lock.
	ErrLocked = errors.New("approval state is locked by another process")
)

// PersistenceError reports a failed write of the state document. The
// in-memory state is unchanged when it is returned, so retrying is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist approval state: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
