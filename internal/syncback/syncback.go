// Package syncback translates plugin-originated reverse patches into
// filesystem mutation plans that round-trip faithfully: file renames follow
// instance renames, class changes rewrite extensions, and adding a child
// converts a leaf file into a directory format.
package syncback

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// Write is one file creation or overwrite.
type Write struct {
	Path     string
	Contents []byte
}

// Rename is an atomic move of an existing file or directory.
type Rename struct {
	From string
	To   string
}

// Removal deletes a file, or a whole directory tree when Dir is set.
type Removal struct {
	Path string
	Dir  bool
}

// Plan is the filesystem mutation plan plus the equivalent in-memory patch
// to apply directly to the tree, so subscribers see the change immediately
// and the tree is guaranteed consistent with disk.
type Plan struct {
	Writes   []Write
	Renames  []Rename
	Removals []Removal
	Patch    *patch.Patch
}

// Suppression is one expected echo event: the change processor registers
// these before executing the plan so the watcher's echo drops.
type Suppression struct {
	Path   string
	Remove bool
}

// Suppressions enumerates every filesystem path the plan will touch with
// the event kind the watcher will echo for it.
func (p *Plan) Suppressions() []Suppression {
	var out []Suppression
	for _, w := range p.Writes {
		out = append(out, Suppression{Path: w.Path})
	}
	for _, r := range p.Renames {
		out = append(out, Suppression{Path: r.From, Remove: true})
		out = append(out, Suppression{Path: r.To})
	}
	for _, r := range p.Removals {
		out = append(out, Suppression{Path: r.Path, Remove: true})
	}
	return out
}

// Counts returns (created, removed) path counts for diagnostics.
func (p *Plan) Counts() (int, int) {
	return len(p.Writes) + len(p.Renames), len(p.Removals) + len(p.Renames)
}

// IsEmpty reports whether the plan mutates nothing on disk and in the tree.
func (p *Plan) IsEmpty() bool {
	return len(p.Writes) == 0 && len(p.Renames) == 0 && len(p.Removals) == 0 &&
		(p.Patch == nil || p.Patch.IsEmpty())
}

func (p *Plan) write(path string, contents []byte) {
	p.Writes = append(p.Writes, Write{Path: path, Contents: contents})
}

func (p *Plan) rename(from, to string) {
	p.Renames = append(p.Renames, Rename{From: from, To: to})
}

func (p *Plan) removeFile(path string) {
	p.Removals = append(p.Removals, Removal{Path: path})
}

func (p *Plan) removeDir(path string) {
	p.Removals = append(p.Removals, Removal{Path: path, Dir: true})
}

// Execute applies the plan: renames first, then atomic writes (temp file
// plus rename in the same directory), then removals. Any failure aborts so
// the caller can refuse to mutate the tree.
func Execute(v *vfs.Vfs, p *Plan) error {
	for _, r := range p.Renames {
		if err := v.CreateDirAll(filepath.Dir(r.To)); err != nil {
			return fmt.Errorf("rename %s: %w", r.To, err)
		}
		if err := v.Rename(r.From, r.To); err != nil {
			return fmt.Errorf("rename %s to %s: %w", r.From, r.To, err)
		}
	}
	for _, w := range p.Writes {
		if err := atomicWrite(v, w.Path, w.Contents); err != nil {
			return err
		}
	}
	for _, r := range p.Removals {
		var err error
		if r.Dir {
			err = v.RemoveDirAll(r.Path)
		} else {
			err = v.RemoveFile(r.Path)
		}
		if err != nil && !vfs.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", r.Path, err)
		}
	}
	return nil
}

// atomicWrite lands contents at path without ever exposing partial bytes: a
// hidden temp file in the same directory, then a rename over the target.
func atomicWrite(v *vfs.Vfs, path string, contents []byte) error {
	dir := filepath.Dir(path)
	if err := v.CreateDirAll(dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.%d.tmp", filepath.Base(path), os.Getpid(), time.Now().UnixNano()))
	if err := v.Write(tmp, contents); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := v.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// WriteUpdate is one in-place change requested by the plugin. A nil value in
// ChangedProperties clears the property.
type WriteUpdate struct {
	ID                tree.Referent
	ChangedName       string
	ChangedClassName  string
	ChangedProperties map[string]variant.Value
}

// WriteAdd inserts a new subtree under an existing parent.
type WriteAdd struct {
	ParentID tree.Referent
	Snapshot *snapshot.Snapshot
}

// WriteRequest is a plugin-originated reverse patch.
type WriteRequest struct {
	Removed []tree.Referent
	Added   []WriteAdd
	Updated []WriteUpdate
}
