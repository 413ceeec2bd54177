// Package walker discovers the indexable source files of a repository
// checkout. It walks the tree once, drops binaries, oversized files and
// ignored paths, and fingerprints whatever remains so the indexer can diff
// consecutive runs cheaply.
package walker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize caps how large a file may be before it is skipped.
// Source files past 1 MB are almost always generated artifacts.
const DefaultMaxFileSize int64 = 1 << 20

// sniffLen is how many leading bytes are inspected for binary content.
const sniffLen = 512

// File describes one indexable file found in a checkout.
type File struct {
	Path        string // absolute path on disk
	RelPath     string // slash-separated path relative to the checkout root
	Size        int64
	Language    string
	ContentHash string // sha256 of the file bytes, hex encoded
	IsTest      bool
}

// Config controls a single walk over a checkout.
type Config struct {
	Root        string   // checkout root
	Include     []string // glob allowlist; empty means everything
	Exclude     []string // glob denylist
	MaxFileSize int64    // 0 means DefaultMaxFileSize
}

// Walk returns every file under cfg.Root that survives filtering, in
// traversal order. Unreadable entries are skipped rather than failing the
// walk; a checkout with one bad file should still be indexable.
func Walk(cfg Config) ([]File, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	ignore := loadIgnoreFile(filepath.Join(root, ".gitignore"))

	var files []File
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ignore.Match(rel) || !included(rel, cfg.Include) || excluded(rel, cfg.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}

		f, ok := inspect(p, rel, info.Size())
		if !ok {
			return nil
		}
		files = append(files, f)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walker: walk %s: %w", root, walkErr)
	}
	return files, nil
}

// inspect reads the file once, sniffing the head for NUL bytes and hashing
// the whole content. Binaries and files that vanish mid-walk report !ok.
func inspect(abs, rel string, size int64) (File, bool) {
	fh, err := os.Open(abs)
	if err != nil {
		return File{}, false
	}
	defer fh.Close()

	head := make([]byte, sniffLen)
	n, err := fh.Read(head)
	if err != nil && err != io.EOF {
		return File{}, false
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return File{}, false
	}

	h := sha256.New()
	h.Write(head[:n])
	if _, err := io.Copy(h, fh); err != nil {
		return File{}, false
	}

	return File{
		Path:        abs,
		RelPath:     rel,
		Size:        size,
		Language:    DetectLanguage(path.Base(rel)),
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		IsTest:      isTestFile(rel),
	}, true
}

// testSuffixes covers the conventions of the ecosystems repochat indexes
// most: Go, Python, and the JavaScript family.
var testSuffixes = []string{
	"_test.go",
	"_test.py",
	".test.js", ".test.ts", ".test.tsx",
	".spec.js", ".spec.ts", ".spec.tsx",
}

// isTestFile reports whether a path looks like a test file. Chat answers
// usually want production code, so the flag is recorded for later filtering.
func isTestFile(rel string) bool {
	rel = strings.ToLower(rel)
	name := path.Base(rel)

	for _, s := range testSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	if strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py") {
		return true
	}
	for _, dir := range []string{"test/", "tests/"} {
		if strings.HasPrefix(rel, dir) || strings.Contains(rel, "/"+dir) {
			return true
		}
	}
	return false
}
