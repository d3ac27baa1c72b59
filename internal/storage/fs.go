package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const fileExt = ".json"

// FS implements Backend on the local file system. Documents live at
// <root>/<project>/<stage>/<document>.json with each part path-escaped.
type FS struct {
	root string // absolute path to the data directory
}

// NewFS creates a file backend rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string { return f.root }

// RelPath returns the slash-separated path of k relative to the root.
func RelPath(k Key) string {
	return path.Join(url.PathEscape(k.ProjectID), url.PathEscape(k.StageID), url.PathEscape(k.DocumentID)+fileExt)
}

// KeyFromPath is the inverse of RelPath.
func KeyFromPath(rel string) (Key, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], fileExt) {
		return Key{}, false
	}
	parts[2] = strings.TrimSuffix(parts[2], fileExt)
	var k Key
	var err error
	if k.ProjectID, err = url.PathUnescape(parts[0]); err != nil {
		return Key{}, false
	}
	if k.StageID, err = url.PathUnescape(parts[1]); err != nil {
		return Key{}, false
	}
	if k.DocumentID, err = url.PathUnescape(parts[2]); err != nil {
		return Key{}, false
	}
	if k.Validate() != nil {
		return Key{}, false
	}
	return k, true
}

// safePath resolves the file of k and rejects any result that escapes the
// root.
func (f *FS) safePath(k Key) (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	abs := filepath.Join(f.root, filepath.FromSlash(RelPath(k)))
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", k)
	}
	return abs, nil
}

// Get returns the stored bytes of k.
func (f *FS) Get(_ context.Context, k Key) ([]byte, error) {
	abs, err := f.safePath(k)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(k)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", k, err)
	}
	return data, nil
}

// Put atomically writes data: tmp file → fsync → rename.
func (f *FS) Put(_ context.Context, k Key, data []byte) error {
	abs, err := f.safePath(k)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ucdcanvas-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the file of k.
func (f *FS) Delete(_ context.Context, k Key) error {
	abs, err := f.safePath(k)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(k)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", k, err)
	}
	return nil
}

// List globs the stored documents, optionally narrowed to one project or
// stage. Escaped path segments contain no glob metacharacters.
func (f *FS) List(_ context.Context, projectID, stageID string) ([]Key, error) {
	p, s := "*", "*"
	if projectID != "" {
		p = url.PathEscape(projectID)
	}
	if stageID != "" {
		s = url.PathEscape(stageID)
	}
	matches, err := doublestar.Glob(os.DirFS(f.root), p+"/"+s+"/*"+fileExt)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]Key, 0, len(matches))
	for _, m := range matches {
		if k, ok := KeyFromPath(m); ok {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, compareKeys)
	return out, nil
}
