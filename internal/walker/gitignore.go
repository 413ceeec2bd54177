package walker

import (
	"os"
	"path"
	"strings"
)

// ignoreFile holds the patterns of a checkout's top-level .gitignore.
// Nested .gitignore files are not consulted; the top-level one catches the
// build artifacts that matter for indexing.
type ignoreFile struct {
	patterns []string
}

// loadIgnoreFile parses the file at p. A missing or unreadable file yields
// an empty, match-nothing ignore list.
func loadIgnoreFile(p string) *ignoreFile {
	data, err := os.ReadFile(p)
	if err != nil {
		return &ignoreFile{}
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return &ignoreFile{patterns: patterns}
}

// Match reports whether the slash-separated rel path is ignored. Patterns
// without a slash match any path component, like git does; patterns with a
// slash match the whole relative path. A trailing slash restricts the
// pattern to directories, so it never matches the final component.
func (f *ignoreFile) Match(rel string) bool {
	if len(f.patterns) == 0 {
		return false
	}

	parts := strings.Split(rel, "/")
	for _, pattern := range f.patterns {
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimSuffix(pattern, "/")

		if strings.Contains(pattern, "/") {
			if ok, _ := path.Match(strings.TrimPrefix(pattern, "/"), rel); ok {
				return true
			}
			continue
		}

		for i, part := range parts {
			if ok, _ := path.Match(pattern, part); ok {
				if dirOnly && i == len(parts)-1 {
					continue
				}
				return true
			}
		}
	}
	return false
}
