package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/logging"
)

func rootCmd() *cobra.Command {
	var verbose bool
	var logFile string

	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "Sync a source tree of files into a live instance tree, both ways",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			config.Initialize()
			if cmd.Flags().Changed("verbose") {
				config.Set("verbose", verbose)
			}
			if cmd.Flags().Changed("log-file") {
				config.Set("log-file", logFile)
			}
			logging.SetVerbose(config.GetBool("verbose"))
			if path := config.GetString("log-file"); path != "" {
				logging.SetFile(path)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "mirror logs into a rotated file")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(initCmd())
	cmd.AddCommand(sourcemapCmd())
	cmd.AddCommand(fmtProjectCmd())
	return cmd
}
