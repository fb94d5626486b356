package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Retention decides which state backups survive pruning. A backup is kept
// when it is among the MaxCount newest or younger than MaxAge; a zero
// limit does not keep anything on its own.
type Retention struct {
	MaxCount int
	MaxAge   time.Duration

	now func() time.Time
}

// PolicyFor builds the retention for the backup.max_count and
// backup.max_age settings. It returns nil, meaning keep everything, when
// neither limit is set.
func PolicyFor(maxCount int, maxAge string) (*Retention, error) {
	r := &Retention{MaxCount: maxCount}
	if maxAge != "" {
		d, err := ParseDuration(maxAge)
		if err != nil {
			return nil, err
		}
		r.MaxAge = d
	}
	if r.MaxCount <= 0 && r.MaxAge <= 0 {
		return nil, nil
	}
	return r, nil
}

// Keep filters backups, which must be sorted newest first, down to the
// ones the retention wants. Order is preserved.
func (r *Retention) Keep(backups []BackupInfo) []BackupInfo {
	if r == nil {
		return backups
	}
	var cutoff time.Time
	if r.MaxAge > 0 {
		now := time.Now
		if r.now != nil {
			now = r.now
		}
		cutoff = now().Add(-r.MaxAge)
	}

	var keep []BackupInfo
	for i, b := range backups {
		byCount := r.MaxCount > 0 && i < r.MaxCount
		byAge := r.MaxAge > 0 && b.CreatedAt.After(cutoff)
		if byCount || byAge {
			keep = append(keep, b)
		}
	}
	return keep
}

// ApplyRetention removes the backups in dir that r does not keep and
// returns their paths. A nil retention removes nothing.
func ApplyRetention(dir string, r *Retention) (deleted []string, err error) {
	if r == nil {
		return nil, nil
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]struct{}, len(backups))
	for _, b := range r.Keep(backups) {
		kept[b.Path] = struct{}{}
	}
	for _, b := range backups {
		if _, ok := kept[b.Path]; ok {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("pruning backup %s: %w", filepath.Base(b.Path), err)
		}
		deleted = append(deleted, b.Path)
	}
	return deleted, nil
}

// ParseDuration accepts Go durations ("720h") plus whole days ("30d") and
// weeks ("2w").
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	units := map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour}
	for suffix, unit := range units {
		num, ok := strings.CutSuffix(s, suffix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * unit, nil
	}
	return 0, fmt.Errorf("invalid duration %q: want a Go duration or a number of days (d) or weeks (w)", s)
}
