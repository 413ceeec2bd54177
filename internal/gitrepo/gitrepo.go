// Package gitrepo manages local clones of registered repositories using the
// git CLI.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Workspace is a directory holding one clone per registered repository.
type Workspace struct {
	root string
}

// NewWorkspace creates (if needed) and returns a workspace rooted at dir.
// An empty dir defaults to ~/.repochat/repos.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("gitrepo: resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".repochat", "repos")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gitrepo: create workspace: %w", err)
	}
	return &Workspace{root: dir}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Path returns the clone directory for a repo name without touching disk.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.root, name)
}

// Ensure makes the named repository available locally: clone on first use,
// pull on subsequent ones. It returns the clone's path.
func (w *Workspace) Ensure(ctx context.Context, name, url string) (string, error) {
	dir := w.Path(name)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		cmd := exec.CommandContext(ctx, "git", "-C", dir, "pull", "--ff-only")
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("gitrepo: git pull %s: %w: %s", name, err, strings.TrimSpace(string(out)))
		}
		return dir, nil
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("gitrepo: git clone %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}
	return dir, nil
}

// Remove deletes the clone for the named repository.
func (w *Workspace) Remove(name string) error {
	dir := w.Path(name)
	if dir == w.root || !strings.HasPrefix(dir, w.root+string(filepath.Separator)) {
		return fmt.Errorf("gitrepo: refusing to remove %s", dir)
	}
	return os.RemoveAll(dir)
}

// HeadSHA returns the current HEAD commit SHA, or an empty string when the
// directory is not a git repository.
func HeadSHA(dir string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
