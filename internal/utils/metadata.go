// Package utils provides small helpers shared by the proofread packages.
package utils

// GetString returns m[key] when it is a string, otherwise defaultVal.
func GetString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return defaultVal
}

// GetStringSlice returns the string elements of m[key]. Decoded JSON arrays
// arrive as []any; non-string elements are skipped.
func GetStringSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
