// Package pathutil keeps story, node and backup paths inside the directories
// they belong to.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/stories/amulet/story.json" becomes ".../amulet/story.json".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidateID checks that a story or node identifier can be used as a single
// path element: non-empty, no separators, no NUL bytes and not "." or "..".
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invalid %s id: empty", kind)
	}
	if strings.ContainsRune(id, '\x00') {
		return fmt.Errorf("invalid %s id %q: contains null byte", kind, id)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s id %q: must be a single path element", kind, id)
	}
	return nil
}

// SafeJoin joins a slash-separated relative locator onto base and rejects
// results that would land outside base.
func SafeJoin(base, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path validation failed: locator is empty")
	}
	if strings.ContainsRune(rel, '\x00') {
		return "", fmt.Errorf("path validation failed: locator contains null byte")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("path validation failed: locator %q is absolute", rel)
	}
	joined := filepath.Join(base, filepath.FromSlash(rel))
	if !isSubpath(filepath.Clean(joined), filepath.Clean(base)) {
		return "", fmt.Errorf("path validation failed: locator %q escapes %s", rel, RedactPath(base))
	}
	return joined, nil
}

// isSubpath reports whether path is base or lies below it. Both must be
// clean.
func isSubpath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
