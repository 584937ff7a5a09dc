package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const initProjectTemplate = `{
    "name": "%s",
    "tree": {
        "$className": "DataModel",
        "ReplicatedStorage": {
            "Shared": {
                "$path": "src/shared"
            }
        },
        "ServerScriptService": {
            "Server": {
                "$path": "src/server"
            }
        }
    }
}
`

const initSharedModule = `local Hello = {}

function Hello.greet(name: string): string
    return "Hello, " .. name .. "!"
end

return Hello
`

const initServerScript = `local Hello = require(game:GetService("ReplicatedStorage").Shared.Hello)

print(Hello.greet("world"))
`

const initGitignore = `/*.rbxl
/*.rbxlx
/*.rbxl.lock
/*.rbxlx.lock
/.loom.lock
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a new project in the given directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			projectFile := filepath.Join(abs, "default.project.json5")
			if _, err := os.Stat(projectFile); err == nil {
				return fmt.Errorf("%s already exists", projectFile)
			}

			files := map[string]string{
				projectFile: fmt.Sprintf(initProjectTemplate, filepath.Base(abs)),
				filepath.Join(abs, "src", "shared", "Hello.luau"):     initSharedModule,
				filepath.Join(abs, "src", "server", "init.server.luau"): initServerScript,
				filepath.Join(abs, ".gitignore"):                      initGitignore,
			}
			for path, contents := range files {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
					return err
				}
			}
			fmt.Printf("created new project at %s\n", abs)
			return nil
		},
	}
}
