package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/vfs"
)

// sourcemapNode mirrors the sourcemap format editors consume: instance
// names, classes, backing file paths, and children.
type sourcemapNode struct {
	Name          string           `json:"name"`
	ClassName     string           `json:"className"`
	FilePaths     []string         `json:"filePaths,omitempty"`
	Children      []*sourcemapNode `json:"children,omitempty"`
}

func sourcemapCmd() *cobra.Command {
	var output string
	var includeNonScripts bool

	cmd := &cobra.Command{
		Use:   "sourcemap [project]",
		Short: "Emit a JSON map of instances to their source files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			projectPath := "."
			if len(args) == 1 {
				projectPath = args[0]
			}

			v, err := vfs.NewOS()
			if err != nil {
				return err
			}
			defer v.Close()

			projectFile, err := project.Locate(v, projectPath)
			if err != nil {
				return err
			}
			proj, err := project.Load(v, projectFile)
			if err != nil {
				return err
			}
			rootSnap, err := snapshot.FromProject(v, proj)
			if err != nil {
				return err
			}
			t := tree.New(rootSnap)

			root := sourcemapFor(t, t.RootID(), includeNonScripts)
			data, err := json.MarshalIndent(root, "", "    ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote sourcemap to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&includeNonScripts, "include-non-scripts", false, "include instances that are not scripts")
	return cmd
}

// sourcemapFor converts a subtree, pruning non-script leaves unless asked
// otherwise. Control attributes never appear here: only names, classes and
// paths are emitted.
func sourcemapFor(t *tree.Tree, id tree.Referent, includeNonScripts bool) *sourcemapNode {
	inst := t.Get(id)
	if inst == nil {
		return nil
	}
	node := &sourcemapNode{
		Name:      inst.Name,
		ClassName: inst.ClassName,
	}
	if meta := t.Metadata(id); meta != nil {
		node.FilePaths = append(node.FilePaths, meta.RelevantPaths...)
	}
	for _, child := range inst.Children {
		if childNode := sourcemapFor(t, child, includeNonScripts); childNode != nil {
			node.Children = append(node.Children, childNode)
		}
	}
	if !includeNonScripts && len(node.Children) == 0 && !t.IsScriptRef(id) {
		return nil
	}
	return node
}
