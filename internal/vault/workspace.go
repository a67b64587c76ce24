package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// workspaceFile is where Obsidian keeps the layout of open panes.
const workspaceFile = ".obsidian/workspace.json"

// Workspace resolves the document the user currently has open.
type Workspace struct {
	vault    *FileSystem
	override string
}

// NewWorkspace returns a workspace for v. A non-empty override names the
// active document explicitly and skips the workspace file.
func NewWorkspace(v *FileSystem, override string) *Workspace {
	return &Workspace{vault: v, override: override}
}

// ActiveDocument returns the open document, or ErrNoActiveDocument.
//
// The active pane recorded in .obsidian/workspace.json wins; otherwise the
// most recently opened file is used.
func (w *Workspace) ActiveDocument(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	if w.override != "" {
		return w.resolve(w.override)
	}

	data, err := os.ReadFile(filepath.Join(w.vault.Root(), filepath.FromSlash(workspaceFile)))
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, ErrNoActiveDocument
	}
	if err != nil {
		return Document{}, fmt.Errorf("read workspace: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return Document{}, fmt.Errorf("read workspace: %s is not valid JSON", workspaceFile)
	}

	state := gjson.ParseBytes(data)

	if active := state.Get("active").String(); active != "" {
		if file, ok := findLeafFile(state, active); ok {
			return w.resolve(file)
		}
	}

	if last := state.Get("lastOpenFiles.0").String(); last != "" {
		return w.resolve(last)
	}

	return Document{}, ErrNoActiveDocument
}

func (w *Workspace) resolve(p string) (Document, error) {
	doc, err := w.vault.Document(p)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrNoActiveDocument, err)
	}
	return doc, nil
}

// findLeafFile walks the pane tree for the leaf with the given id and
// returns the file it shows.
func findLeafFile(node gjson.Result, id string) (string, bool) {
	if node.IsObject() && node.Get("id").String() == id {
		if file := node.Get("state.state.file"); file.Exists() && file.String() != "" {
			return file.String(), true
		}
	}

	var (
		found string
		ok    bool
	)
	if node.IsObject() || node.IsArray() {
		node.ForEach(func(_, child gjson.Result) bool {
			found, ok = findLeafFile(child, id)
			return !ok
		})
	}
	return found, ok
}
