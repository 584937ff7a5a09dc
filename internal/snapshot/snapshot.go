// Package snapshot turns filesystem paths into candidate instance subtrees.
// Each format-specific middleware is a pure function from (context, vfs,
// path) to either "no snapshot" or one snapshot; middlewares never mutate
// the live tree.
package snapshot

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/variant"
)

// Snapshot is a transient, tree-shaped value produced by a middleware and
// consumed by patch compute. It carries no referent; patch apply assigns one.
type Snapshot struct {
	Name       string
	ClassName  string
	Properties variant.Map
	Children   []*Snapshot
	Metadata   Metadata
}

// InstigatingSource names the thing whose mutation should re-drive
// middleware on an instance: either a filesystem path or a project-manifest
// node.
type InstigatingSource struct {
	// Path is set for filesystem-backed instances.
	Path string
	// ProjectPath and NodeName are set for instances synthesized from a
	// project node.
	ProjectPath string
	NodeName    string
}

// IsProjectNode reports whether the source is a manifest node rather than a
// filesystem path.
func (s *InstigatingSource) IsProjectNode() bool {
	return s != nil && s.ProjectPath != ""
}

// SourcePath returns the path to re-snapshot when the source changes.
func (s *InstigatingSource) SourcePath() string {
	if s == nil {
		return ""
	}
	if s.ProjectPath != "" {
		return s.ProjectPath
	}
	return s.Path
}

// Metadata is the sibling record attached to every instance.
type Metadata struct {
	InstigatingSource *InstigatingSource
	// RelevantPaths lists every path whose change should re-drive this
	// instance, in order. Mirrored by the tree's path index.
	RelevantPaths []string
	// IgnoreUnknownInstances preserves tree children that have no source on
	// disk during reconciliation.
	IgnoreUnknownInstances bool
	// SpecifiedID is the user-chosen symbolic id, if any.
	SpecifiedID string
	// Middleware that produced this snapshot; syncback reuses it for
	// incremental format decisions.
	Middleware Middleware
	// ProjectOverrides names the properties a project node overrides for
	// this instance. Syncback drops them rather than duplicating them into
	// meta files.
	ProjectOverrides map[string]struct{}
	// Context carries the enclosing project's ignore and sync rules.
	Context Context
}

// Context is inherited from the enclosing project manifest.
type Context struct {
	// ProjectFolder anchors relative glob matching.
	ProjectFolder string
	IgnorePaths   []string
	SyncRules     []project.SyncRule
}

// ShouldIgnore reports whether a path matches any ignore glob.
func (c *Context) ShouldIgnore(path string) bool {
	if len(c.IgnorePaths) == 0 {
		return false
	}
	rel := path
	if c.ProjectFolder != "" {
		if r, err := filepath.Rel(c.ProjectFolder, path); err == nil {
			rel = filepath.ToSlash(r)
		}
	}
	for _, glob := range c.IgnorePaths {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// syncRuleFor returns the first sync rule whose glob matches the path.
func (c *Context) syncRuleFor(path string) *project.SyncRule {
	if len(c.SyncRules) == 0 {
		return nil
	}
	rel := path
	if c.ProjectFolder != "" {
		if r, err := filepath.Rel(c.ProjectFolder, path); err == nil {
			rel = filepath.ToSlash(r)
		}
	}
	for i := range c.SyncRules {
		rule := &c.SyncRules[i]
		if ok, err := doublestar.Match(rule.Pattern, rel); err == nil && ok {
			return rule
		}
	}
	return nil
}

// Walk visits the snapshot and all descendants depth-first.
func (s *Snapshot) Walk(visit func(*Snapshot)) {
	visit(s)
	for _, child := range s.Children {
		child.Walk(visit)
	}
}
