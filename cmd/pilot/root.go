package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:5000"

type rootOptions struct {
	configPath string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pilot",
		Short: "Natural-language browser automation service",
		Long: `pilot turns instructions such as "go to example.com then click the Login
button" into an ordered list of browser actions and runs them one task at a
time against a single automation session.

Run "pilot serve" to start the service, then submit instructions over HTTP
or with "pilot submit".`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "API address used by client commands")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSubmitCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newCancelCmd(opts))
	return cmd
}

// Execute runs the root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
