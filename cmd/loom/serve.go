package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/session"
)

func serveCmd() *cobra.Command {
	var port uint16
	var address string

	cmd := &cobra.Command{
		Use:   "serve [project]",
		Short: "Serve the project for live sync with the editor plugin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath := "."
			if len(args) == 1 {
				projectPath = args[0]
			}
			if !cmd.Flags().Changed("port") {
				port = config.GetUint16("port")
			}
			if !cmd.Flags().Changed("address") {
				address = config.GetString("address")
			}

			s, err := session.Start(session.Options{
				ProjectPath:   projectPath,
				Address:       address,
				Port:          port,
				ServerVersion: Version,
			})
			if err != nil {
				return err
			}
			defer s.Stop()

			printBanner(s)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			logging.Infof("shutting down")
			return nil
		},
	}

	cmd.Flags().Uint16Var(&port, "port", 0, "port to listen on (overrides the project file)")
	cmd.Flags().StringVar(&address, "address", "", "address to bind (overrides the project file)")
	return cmd
}
