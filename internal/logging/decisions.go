package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DecisionsFile is the file NewDecisionLogger appends to.
const DecisionsFile = "decisions.jsonl"

// Event is one line of the decision log: an approval change and what it
// was recorded against.
type Event struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Event   string    `json:"event"`
	Story   string    `json:"story"`
	Node    string    `json:"node,omitempty"`
	Nodes   []string  `json:"nodes,omitempty"`

	// Approved is the flag after the event, nil when the event sets none.
	Approved    *bool  `json:"approved,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Previous    string `json:"previous_fingerprint,omitempty"`
	Changed     int    `json:"changed,omitempty"`
}

// Flag returns a pointer to b for Event.Approved.
func Flag(b bool) *bool { return &b }

// DecisionLogger appends Events to decisions.jsonl. All methods are safe
// for concurrent use and on a nil receiver, which drops everything.
type DecisionLogger struct {
	mu        sync.Mutex
	f         *os.File
	enc       *json.Encoder
	sessionID string
}

// NewDecisionLogger opens dir/decisions.jsonl when level is debug or
// trace. At info it returns nil, as it does when the file cannot be
// opened: the decision log never stops a review.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{f: f, enc: json.NewEncoder(f), sessionID: uuid.NewString()}
}

// SessionID identifies this process in every event it writes.
func (dl *DecisionLogger) SessionID() string {
	if dl == nil {
		return ""
	}
	return dl.sessionID
}

// Record stamps e with the time (unless set) and session and appends it.
func (dl *DecisionLogger) Record(e Event) {
	if dl == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	e.Session = dl.sessionID

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.f != nil {
		_ = dl.enc.Encode(e)
	}
}

// Close closes the file. Events recorded afterwards are dropped.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.f != nil {
		_ = dl.f.Close()
		dl.f, dl.enc = nil, nil
	}
}
