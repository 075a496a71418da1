// ABOUTME: Root cobra command tree: serve, admin token, version

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errConfigFailure signals a config load or boot-time validation failure,
// mapping to exit code 1.
var errConfigFailure = errors.New("config or boot failure")

// errStorageUnreachable signals the boot-time dependency check failed
// against the configured object/metadata store, mapping to exit code 2.
var errStorageUnreachable = errors.New("storage unreachable")

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errStorageUnreachable) {
		return 2
	}
	return 1
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "skillserver",
		Short:         "MCP skill catalog server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newAdminCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the skillserver version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "skillserver %s\n", version)
			return err
		},
	}
}
