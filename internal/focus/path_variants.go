package focus

import (
	"path"
	"strings"
)

func toLowerBackslash(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "/", "\\"))
}

func toLowerForward(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

func baseName(p string) string {
	normalized := strings.ReplaceAll(p, "\\", "/")
	normalized = strings.TrimRight(normalized, "/")
	if normalized == "" {
		return ""
	}
	return strings.ToLower(path.Base(normalized))
}

// titleContainsAny reports whether the lowercased window title contains
// any of the given lowercased CWD variants.
func titleContainsAny(lowerTitle string, variants []string) bool {
	for _, v := range variants {
		if v != "" && strings.Contains(lowerTitle, v) {
			return true
		}
	}
	return false
}
