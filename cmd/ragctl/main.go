// Package main implements ragctl, a CLI for the ragserve HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &client{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "CLI for ragserve HTTP operations",
		Long: `ragctl is a command-line interface for the ragserve HTTP API.
It adds and removes documents, runs tag-scoped queries and checks server health.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.baseURL, "server", "http://localhost:8080", "ragserve server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newQueryCmd(c),
		newAddCmd(c),
		newRemoveCmd(c),
		newHealthCmd(c),
	)
	return root
}
