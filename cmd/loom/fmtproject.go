package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/vfs"
)

func fmtProjectCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "fmt-project [project]",
		Short: "Reformat a project manifest in canonical style",
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
			formatted, err := proj.Serialize()
			if err != nil {
				return err
			}

			current, err := os.ReadFile(projectFile)
			if err != nil {
				return err
			}
			if string(current) == string(formatted) {
				return nil
			}
			if check {
				return fmt.Errorf("%s is not formatted", projectFile)
			}
			return os.WriteFile(projectFile, formatted, 0o644)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "exit non-zero instead of rewriting")
	return cmd
}
