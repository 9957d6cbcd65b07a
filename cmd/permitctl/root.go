// cmd/permitctl/root.go
package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "permitctl",
		Short:         "Operator tooling for the permit workflow workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newRegistryCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newScaffoldCommand())

	return rootCmd
}
