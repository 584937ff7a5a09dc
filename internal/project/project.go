// Package project parses and serializes the project manifest: the
// JSON-with-comments document that describes how filesystem paths and
// declared services compose into an instance tree. The manifest is pure
// data; materializing it into snapshots is the snapshot package's job.
package project

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/untoldecay/loom/internal/vfs"
)

// DefaultFilenames are the accepted manifest names at a served root, in
// preference order.
var DefaultFilenames = []string{"default.project.json5", "default.project.json"}

// Project is a parsed manifest.
type Project struct {
	Name            string     `json:"name,omitempty"`
	ServePort       *uint16    `json:"servePort,omitempty"`
	ServeAddress    string     `json:"serveAddress,omitempty"`
	PlaceID         *uint64    `json:"placeId,omitempty"`
	GameID          *uint64    `json:"gameId,omitempty"`
	ServePlaceIDs   []uint64   `json:"servePlaceIds,omitempty"`
	BlockedPlaceIDs []uint64   `json:"blockedPlaceIds,omitempty"`
	GlobIgnorePaths []string   `json:"globIgnorePaths,omitempty"`
	SyncRules       []SyncRule `json:"syncRules,omitempty"`
	Tree            *Node      `json:"tree"`

	// FilePath is where the manifest was read from. Not serialized.
	FilePath string `json:"-"`
}

// Folder returns the directory containing the manifest; node paths resolve
// relative to it.
func (p *Project) Folder() string {
	return filepath.Dir(p.FilePath)
}

// SyncRule overrides middleware selection for paths matching a glob.
type SyncRule struct {
	// Pattern is a glob matched against the path relative to the project
	// folder. First matching rule wins.
	Pattern string `json:"pattern"`
	// Use names the middleware, e.g. "moduleScript", "jsonModel", "text".
	Use string `json:"use"`
	// Suffix, when set, is stripped from the file name to produce the
	// instance name (e.g. ".spec" to map "foo.spec.luau" to "foo").
	Suffix string `json:"suffix,omitempty"`
}

// PathNode is a project node's `$path`: either required (error when the path
// is missing) or optional (node silently skipped when missing).
type PathNode struct {
	Path     string
	Optional bool
}

// IsEmpty reports whether no path was declared.
func (p *PathNode) IsEmpty() bool { return p == nil || p.Path == "" }

func (p *PathNode) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		p.Path = plain
		return nil
	}
	var tagged struct {
		Optional string `json:"optional"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("$path must be a string or {\"optional\": path}: %w", err)
	}
	if tagged.Optional == "" {
		return fmt.Errorf("$path optional form requires a path")
	}
	p.Path = tagged.Optional
	p.Optional = true
	return nil
}

func (p PathNode) MarshalJSON() ([]byte, error) {
	if p.Optional {
		return json.Marshal(map[string]string{"optional": p.Path})
	}
	return json.Marshal(p.Path)
}

// Node is one node of the manifest tree. Keys beginning with `$` configure
// the node; every other key declares a named child.
type Node struct {
	ClassName              string                     `json:"$className,omitempty"`
	Path                   *PathNode                  `json:"$path,omitempty"`
	Properties             map[string]json.RawMessage `json:"$properties,omitempty"`
	Attributes             map[string]json.RawMessage `json:"$attributes,omitempty"`
	IgnoreUnknownInstances *bool                      `json:"$ignoreUnknownInstances,omitempty"`
	ID                     string                     `json:"$id,omitempty"`

	// Children by name. The map is unordered; ChildNames returns the names
	// sorted.
	Children map[string]*Node `json:"-"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		var err error
		switch key {
		case "$className":
			err = json.Unmarshal(value, &n.ClassName)
		case "$path":
			n.Path = &PathNode{}
			err = json.Unmarshal(value, n.Path)
		case "$properties":
			err = json.Unmarshal(value, &n.Properties)
		case "$attributes":
			err = json.Unmarshal(value, &n.Attributes)
		case "$ignoreUnknownInstances":
			err = json.Unmarshal(value, &n.IgnoreUnknownInstances)
		case "$id":
			err = json.Unmarshal(value, &n.ID)
		default:
			if strings.HasPrefix(key, "$") {
				return fmt.Errorf("unknown project field %q", key)
			}
			child := &Node{}
			if err = json.Unmarshal(value, child); err == nil {
				if n.Children == nil {
					n.Children = make(map[string]*Node)
				}
				n.Children[key] = child
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage)
	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}
	if n.ClassName != "" {
		if err := put("$className", n.ClassName); err != nil {
			return nil, err
		}
	}
	if !n.Path.IsEmpty() {
		if err := put("$path", n.Path); err != nil {
			return nil, err
		}
	}
	if len(n.Properties) > 0 {
		if err := put("$properties", n.Properties); err != nil {
			return nil, err
		}
	}
	if len(n.Attributes) > 0 {
		if err := put("$attributes", n.Attributes); err != nil {
			return nil, err
		}
	}
	if n.IgnoreUnknownInstances != nil {
		if err := put("$ignoreUnknownInstances", n.IgnoreUnknownInstances); err != nil {
			return nil, err
		}
	}
	if n.ID != "" {
		if err := put("$id", n.ID); err != nil {
			return nil, err
		}
	}
	for name, child := range n.Children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, fmt.Errorf("child %q: %w", name, err)
		}
		out[name] = raw
	}
	return json.Marshal(out)
}

// ChildNames returns the node's child names sorted, for deterministic
// iteration.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes a manifest from JSON-with-comments source. filePath is used
// for error prefixes and for resolving node paths later.
func Parse(source []byte, filePath string) (*Project, error) {
	var project Project
	if err := json.Unmarshal(jsonc.ToJSON(source), &project); err != nil {
		return nil, fmt.Errorf("%s: malformed project: %w", filePath, err)
	}
	if project.Tree == nil {
		return nil, fmt.Errorf("%s: project must have a tree field", filePath)
	}
	project.FilePath = filePath
	return &project, nil
}

// Load reads and parses a manifest through the Vfs.
func Load(v *vfs.Vfs, filePath string) (*Project, error) {
	data, err := v.Read(filePath)
	if err != nil {
		return nil, err
	}
	return Parse(data, filePath)
}

// Locate finds the manifest for a served root. If givenPath points at a file
// it is used directly; if it points at a directory the default filenames are
// probed in order.
func Locate(v *vfs.Vfs, givenPath string) (string, error) {
	meta, err := v.Metadata(givenPath)
	if err != nil {
		return "", err
	}
	if meta.IsFile {
		return givenPath, nil
	}
	for _, name := range DefaultFilenames {
		candidate := filepath.Join(givenPath, name)
		if v.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no project file found in %s (expected %s)", givenPath, DefaultFilenames[0])
}

// Serialize renders the manifest in canonical formatting: four-space indent,
// top-level fields in declaration order, node keys sorted, trailing newline.
// Used by fmt-project.
func (p *Project) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ResolvePath resolves a node path relative to the manifest folder.
func (p *Project) ResolvePath(nodePath string) string {
	if filepath.IsAbs(nodePath) {
		return nodePath
	}
	return filepath.Join(p.Folder(), nodePath)
}
