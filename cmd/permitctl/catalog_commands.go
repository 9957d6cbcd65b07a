// cmd/permitctl/catalog_commands.go
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"permit-workers/internal/models"
	"permit-workers/internal/workflow/catalog"
)

func newCatalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate stage catalogs",
	}

	catalogCmd.AddCommand(newCatalogValidateCommand())
	catalogCmd.AddCommand(newCatalogShowCommand())
	catalogCmd.AddCommand(newCatalogDumpCommand())

	return catalogCmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a catalog file; the built-in catalog when no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(pathArg(args))
			if err != nil {
				return err
			}
			reqs := 0
			for _, s := range cat.List() {
				r, err := cat.RequirementsFor(s.ID)
				if err != nil {
					return err
				}
				reqs += len(r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog valid: %d stages, %d requirements\n", cat.Len(), reqs)
			return nil
		},
	}
}

func newCatalogShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print stages and their requirements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(pathArg(args))
			if err != nil {
				return err
			}

			var rows [][]string
			for _, s := range cat.List() {
				reqs, err := cat.RequirementsFor(s.ID)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					strconv.Itoa(s.OrderNumber),
					s.ID,
					joinRoles(s.RequiredRoleToAdvance),
					describeRequirements(reqs),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Stage", "Advanced by", "Requirements"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newCatalogDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Write the built-in catalog as YAML, a starting point for custom catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(catalog.DefaultDocument())
			return err
		},
	}
}

func pathArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func joinRoles(roles []models.Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ", ")
}

func describeRequirements(reqs []models.Requirement) string {
	if len(reqs) == 0 {
		return "-"
	}
	lines := make([]string, 0, len(reqs))
	for _, r := range reqs {
		line := r.ID
		if !r.Mandatory {
			line += " (optional)"
		}
		if r.InspectionType != "" {
			line += " [" + r.InspectionType + " inspection]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
