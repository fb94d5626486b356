package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
)

const stateDoc = `{
  "tale": {
    "start": {"approved": true, "fingerprint": "abc"},
    "end": false
  }
}
`

func writeState(t *testing.T, dir, data string) string {
	t.Helper()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing state: %v", err)
	}
	return path
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	statePath := writeState(t, dir, stateDoc)
	backupDir := filepath.Join(dir, "backups")

	info, err := Backup(statePath, backupDir, nil)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if info == nil || info.Size != int64(len(stateDoc)) {
		t.Fatalf("Backup() info = %+v", info)
	}
	if filepath.Dir(info.Path) != backupDir {
		t.Errorf("backup written to %s, want dir %s", info.Path, backupDir)
	}

	if err := os.WriteFile(statePath, []byte(`{"tale": {}}`), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Restore(info.Path, statePath)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Stories != 1 || result.Nodes != 2 {
		t.Errorf("Restore() result = %+v, want 1 story and 2 nodes", result)
	}
	got, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != stateDoc {
		t.Errorf("restored state = %q, want original", got)
	}
}

func TestBackup_NoState(t *testing.T) {
	dir := t.TempDir()
	info, err := Backup(filepath.Join(dir, "state.json"), filepath.Join(dir, "backups"), nil)
	if err != nil || info != nil {
		t.Errorf("Backup() of absent state = %+v, %v; want nil, nil", info, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !errors.Is(err, os.ErrNotExist) {
		t.Error("backup directory should not be created when there is nothing to copy")
	}
}

func TestBackup_SameSecond(t *testing.T) {
	dir := t.TempDir()
	statePath := writeState(t, dir, stateDoc)
	backupDir := filepath.Join(dir, "backups")

	var paths []string
	for i := 0; i < 3; i++ {
		info, err := Backup(statePath, backupDir, nil)
		if err != nil {
			t.Fatalf("Backup() #%d error = %v", i, err)
		}
		paths = append(paths, info.Path)
	}
	if paths[0] == paths[1] || paths[1] == paths[2] {
		t.Fatalf("backups overwrote each other: %v", paths)
	}

	backups, err := ListBackups(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 3 {
		t.Fatalf("ListBackups() found %d, want 3", len(backups))
	}
	// Newest first, which is the last one taken.
	if backups[0].Path != paths[2] {
		t.Errorf("newest = %s, want %s", backups[0].Name(), filepath.Base(paths[2]))
	}
}

func TestBackup_AppliesRetention(t *testing.T) {
	dir := t.TempDir()
	statePath := writeState(t, dir, stateDoc)
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"state-20240101-000000.json", "state-20240102-000000.json"} {
		if err := os.WriteFile(filepath.Join(backupDir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	info, err := Backup(statePath, backupDir, &Retention{MaxCount: 2})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	backups, err := ListBackups(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("after retention %d backups remain, want 2", len(backups))
	}
	if backups[0].Path != info.Path || backups[1].Name() != "state-20240102-000000.json" {
		t.Errorf("kept %s and %s", backups[0].Name(), backups[1].Name())
	}
}

func TestRestore_RejectsCorrupt(t *testing.T) {
	dir := t.TempDir()
	statePath := writeState(t, dir, stateDoc)
	bad := filepath.Join(dir, "state-20240101-000000.json")
	if err := os.WriteFile(bad, []byte(`{"tale": {"start": "yes"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Restore(bad, statePath); !errors.Is(err, approval.ErrCorrupt) {
		t.Fatalf("Restore() error = %v, want ErrCorrupt", err)
	}
	got, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != stateDoc {
		t.Error("failed restore modified the state file")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"state-20240101-000000.json", "state-20240301-000000.json", "state-20240201-000000.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := Resolve(dir, "latest")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "state-20240301-000000.json" {
		t.Errorf("Resolve(latest) = %s", latest)
	}

	byName, err := Resolve(dir, "state-20240101-000000.json")
	if err != nil || byName != filepath.Join(dir, "state-20240101-000000.json") {
		t.Errorf("Resolve(name) = %s, %v", byName, err)
	}

	if _, err := Resolve(dir, "state-19990101-000000.json"); err == nil {
		t.Error("expected error for unknown backup")
	}
	if _, err := Resolve(t.TempDir(), "latest"); err == nil {
		t.Error("expected error for empty backup dir")
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		ok      bool
		seq     int
		created time.Time
	}{
		{"state-20240102-030405.json", true, 1, time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)},
		{"state-20240102-030405-3.json", true, 3, time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)},
		{"state-20240102-030405-1.json", false, 0, time.Time{}},
		{"state-20240102-030405x.json", false, 0, time.Time{}},
		{"state-2024.json", false, 0, time.Time{}},
		{"old-backup-20240102-030405.json", false, 0, time.Time{}},
		{"state-20240102-030405.json.gz", false, 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bi, ok := parseName(tt.name)
			if ok != tt.ok {
				t.Fatalf("parseName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if !ok {
				return
			}
			if bi.Seq != tt.seq || !bi.CreatedAt.Equal(tt.created) {
				t.Errorf("parseName(%q) = %+v", tt.name, bi)
			}
		})
	}
}
