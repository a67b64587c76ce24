package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yargevad/filepathx"
)

var (
	ErrDestinationExists = errors.New("destination file already exists")
	ErrOutsideVault      = errors.New("path is outside the vault")
	ErrNoActiveDocument  = errors.New("no active file")
)

// Document is a text file in the vault. Path is vault-relative and uses
// forward slashes.
type Document struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// FileSystem is a vault rooted at a directory on local disk.
type FileSystem struct {
	root string
}

func NewFileSystem(root string) (*FileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault dir: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", abs)
	}

	return &FileSystem{root: abs}, nil
}

// Root returns the absolute vault directory.
func (v *FileSystem) Root() string {
	return v.root
}

// Document resolves p to a document. Relative paths are taken relative to
// the vault root. The file must exist and must not be a directory.
func (v *FileSystem) Document(p string) (Document, error) {
	rel, err := v.relative(p)
	if err != nil {
		return Document{}, err
	}

	info, err := os.Stat(v.abs(rel))
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", rel)
	}

	return Document{ID: rel, Path: rel}, nil
}

// ReadText returns the full current content of doc.
func (v *FileSystem) ReadText(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(v.abs(doc.Path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", doc.Path, err)
	}
	return string(data), nil
}

// Rename moves doc to newPath (vault-relative). It refuses to overwrite an
// existing file. Renaming a document onto itself is a no-op.
func (v *FileSystem) Rename(ctx context.Context, doc Document, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := v.relative(newPath)
	if err != nil {
		return err
	}
	if dest == doc.Path {
		return nil
	}

	src := v.abs(doc.Path)
	dst := v.abs(dest)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("rename %s: %w", doc.Path, err)
	}

	if dstInfo, err := os.Lstat(dst); err == nil {
		// A case-only rename on a case-insensitive filesystem finds the
		// source itself at the destination.
		if !os.SameFile(srcInfo, dstInfo) {
			return fmt.Errorf("rename %s to %s: %w", doc.Path, dest, ErrDestinationExists)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("rename %s to %s: %w", doc.Path, dest, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("rename %s to %s: %w", doc.Path, dest, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s to %s: %w", doc.Path, dest, err)
	}
	return nil
}

// Select expands glob patterns (with ** support) relative to the vault root
// and returns the matching files sorted by path. Directories and anything
// under a dot-directory such as .obsidian are skipped.
func (v *FileSystem) Select(patterns ...string) ([]Document, error) {
	seen := make(map[string]bool)
	var docs []Document

	for _, pattern := range patterns {
		absPattern := pattern
		if !filepath.IsAbs(pattern) {
			absPattern = filepath.Join(v.root, pattern)
		}

		matches, err := filepathx.Glob(absPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			rel, err := v.relative(m)
			if err != nil || seen[rel] || hidden(rel) {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[rel] = true
			docs = append(docs, Document{ID: rel, Path: rel})
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (v *FileSystem) abs(rel string) string {
	return filepath.Join(v.root, filepath.FromSlash(rel))
}

// relative converts p to a clean vault-relative slash path.
func (v *FileSystem) relative(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}

	abs := p
	if !filepath.IsAbs(p) {
		abs = filepath.Join(v.root, filepath.FromSlash(p))
	}

	rel, err := filepath.Rel(v.root, filepath.Clean(abs))
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideVault)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideVault)
	}
	return path.Clean(rel), nil
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
