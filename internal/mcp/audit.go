package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFile is the audit log's file name inside the audit directory.
const AuditFile = "audit.jsonl"

// AuditEntry records one tool call. Only identifiers are kept; node text
// never reaches the audit log.
type AuditEntry struct {
	Time       time.Time `json:"time"`
	Tool       string    `json:"tool"`
	Story      string    `json:"story,omitempty"`
	Node       string    `json:"node,omitempty"`
	Subtree    bool      `json:"subtree,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
}

// auditTarget is what a tool call acted on.
type auditTarget struct {
	Story   string
	Node    string
	Subtree bool
}

// AuditLogger appends entries to audit.jsonl. Safe for concurrent use; a
// nil *AuditLogger discards everything.
type AuditLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewAuditLogger opens dir/audit.jsonl for appending, creating dir.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{f: f, enc: json.NewEncoder(f)}, nil
}

// Log appends e as one line. Write failures are dropped.
func (a *AuditLogger) Log(e AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		_ = a.enc.Encode(e)
	}
}

// Close closes the file. Later calls to Log are no-ops.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f, a.enc = nil, nil
	return err
}

func (s *Server) audit(tool string, start time.Time, target auditTarget, err error) {
	e := AuditEntry{
		Time:       start,
		Tool:       tool,
		Story:      target.Story,
		Node:       target.Node,
		Subtree:    target.Subtree,
		DurationMs: time.Since(start).Milliseconds(),
		OK:         err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.auditLogger.Log(e)
}
