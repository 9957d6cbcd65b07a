// cmd/permitctl/registry_commands.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"permit-workers/internal/common/validation"
	"permit-workers/pkg/registry"
)

func newRegistryCommand() *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry",
	}

	registryCmd.AddCommand(newRegistryListCommand())
	registryCmd.AddCommand(newRegistryValidateCommand())
	registryCmd.AddCommand(newRegistryExportCommand())

	return registryCmd
}

func loadRegistry(path string) (*registry.ActivityRegistry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadRegistry(path)
}

func newRegistryListCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities with their task type, timeout and retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(path)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(reg.Activities))
			for _, a := range reg.Activities {
				rows = append(rows, []string{
					a.Category,
					a.TaskType,
					a.Timeout,
					strconv.Itoa(a.Retries),
					strings.Join(a.ErrorCodes, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Category", "Task type", "Timeout", "Retries", "Error codes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Registry file (default: built-in)")
	return cmd
}

func newRegistryValidateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check timeouts and compile every input schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(path)
			if err != nil {
				return err
			}
			var problems []string
			for _, a := range reg.Activities {
				if _, err := time.ParseDuration(a.Timeout); err != nil {
					problems = append(problems, fmt.Sprintf("%s: invalid timeout %q", a.TaskType, a.Timeout))
				}
				if a.Retries < 0 {
					problems = append(problems, fmt.Sprintf("%s: negative retries", a.TaskType))
				}
			}
			if _, err := validation.NewValidator(reg); err != nil {
				problems = append(problems, err.Error())
			}
			if len(problems) > 0 {
				return fmt.Errorf("registry invalid:\n  %s", strings.Join(problems, "\n  "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry valid: %d activities (version %s)\n", len(reg.Activities), reg.Version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Registry file (default: built-in)")
	return cmd
}

func newRegistryExportCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in registry as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Default()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(reg, "", "  ")
			if err != nil {
				return fmt.Errorf("encode registry: %w", err)
			}
			if target == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(target, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d activities to %s\n", len(reg.Activities), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "output", "o", "", "Destination file (default: stdout)")
	return cmd
}
