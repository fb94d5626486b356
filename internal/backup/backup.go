// Package backup keeps timestamped copies of the approval state document
// and restores them.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/utils"
)

const (
	filePrefix = "state-"
	fileSuffix = ".json"
	timeLayout = "20060102-150405"
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	// Seq orders backups taken within the same second.
	Seq int `json:"-"`
}

// Name is the backup's file name.
func (b BackupInfo) Name() string { return filepath.Base(b.Path) }

// GenerateBackupPath returns an unused timestamped backup path in dir.
func GenerateBackupPath(dir string, now time.Time) string {
	stamp := now.Format(timeLayout)
	path := filepath.Join(dir, filePrefix+stamp+fileSuffix)
	for seq := 2; ; seq++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s%s-%d%s", filePrefix, stamp, seq, fileSuffix))
	}
}

// Backup copies the state document at statePath into dir and applies the
// retention, which may be nil. A missing state document is not an
// error: there is nothing to back up and the returned info is nil.
func Backup(statePath, dir string, retention *Retention) (*BackupInfo, error) {
	data, err := os.ReadFile(statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := GenerateBackupPath(dir, time.Now())
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	info, ok := parseName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("generated backup name %s does not parse", filepath.Base(path))
	}
	info.Path = path
	info.Size = int64(len(data))

	if _, err := ApplyRetention(dir, retention); err != nil {
		return &info, fmt.Errorf("applying retention: %w", err)
	}
	return &info, nil
}

// RestoreResult describes a restored state document.
type RestoreResult struct {
	Source  string `json:"source"`
	Stories int    `json:"stories"`
	Nodes   int    `json:"nodes"`
}

// Restore replaces the state document at statePath with the backup at
// backupPath. The backup must decode as a state document; the target is
// replaced atomically.
func Restore(backupPath, statePath string) (*RestoreResult, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	stories, nodes, err := approval.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", filepath.Base(backupPath), err)
	}

	if err := os.MkdirAll(filepath.Dir(statePath), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	if err := utils.WriteFileAtomic(statePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to restore state file: %w", err)
	}
	return &RestoreResult{Source: backupPath, Stories: stories, Nodes: nodes}, nil
}

// Resolve finds a backup in dir by file name or path. "latest" selects the
// newest backup.
func Resolve(dir, name string) (string, error) {
	if name == "latest" {
		backups, err := ListBackups(dir)
		if err != nil {
			return "", err
		}
		if len(backups) == 0 {
			return "", fmt.Errorf("no backups in %s", dir)
		}
		return backups[0].Path, nil
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return name, nil
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("backup %s: %w", name, err)
	}
	return path, nil
}

// ListBackups scans dir for state backups and returns them sorted newest-first.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		bi, ok := parseName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		bi.Path = filepath.Join(dir, e.Name())
		bi.Size = info.Size()
		backups = append(backups, bi)
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].Seq > backups[j].Seq
	})

	return backups, nil
}

// parseName recognizes state-YYYYMMDD-HHMMSS.json and the -N variants used
// for backups taken within one second.
func parseName(name string) (BackupInfo, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return BackupInfo{}, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if len(rest) < len(timeLayout) {
		return BackupInfo{}, false
	}
	created, err := time.ParseInLocation(timeLayout, rest[:len(timeLayout)], time.Local)
	if err != nil {
		return BackupInfo{}, false
	}
	bi := BackupInfo{CreatedAt: created, Seq: 1}
	if extra := rest[len(timeLayout):]; extra != "" {
		seq, err := strconv.Atoi(strings.TrimPrefix(extra, "-"))
		if err != nil || !strings.HasPrefix(extra, "-") || seq < 2 {
			return BackupInfo{}, false
		}
		bi.Seq = seq
	}
	return bi, true
}
