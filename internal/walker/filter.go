package walker

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are directory names never descended into. They hold dependencies,
// build output, and tool state, not code anyone asks questions about.
var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".repochat":    {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	"dist":         {},
	"build":        {},
	"target":       {},
	".next":        {},
	".idea":        {},
	".vscode":      {},
}

func skipDir(name string) bool {
	_, ok := skipDirs[strings.ToLower(name)]
	return ok
}

// included reports whether rel matches any include pattern. An empty
// allowlist includes everything.
func included(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchAny(rel, patterns)
}

// excluded reports whether rel matches any exclude pattern.
func excluded(rel string, patterns []string) bool {
	return matchAny(rel, patterns)
}

// matchAny matches rel against doublestar globs. A pattern without a slash
// is also tried against the bare filename, so "*.min.js" works at any depth.
func matchAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.PathMatch(pattern, rel); err == nil && ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.PathMatch(pattern, path.Base(rel)); err == nil && ok {
				return true
			}
		}
	}
	return false
}
