// cmd/permitctl/scaffold_command.go
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"permit-workers/pkg/registry"
)

type scaffoldData struct {
	Dir          string
	PackageName  string
	TaskType     string
	DisplayName  string
	Description  string
	Timeout      string
	InputFields  []scaffoldField
	OutputFields []scaffoldField
}

type scaffoldField struct {
	Name    string
	Type    string
	JSONTag string
}

func newScaffoldCommand() *cobra.Command {
	var (
		registryPath string
		outputDir    string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "scaffold <activity-id>",
		Short: "Generate config, models and handler stubs for a registry activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(registryPath)
			if err != nil {
				return err
			}
			var activity *registry.Activity
			for i := range reg.Activities {
				if reg.Activities[i].ID == args[0] {
					activity = &reg.Activities[i]
					break
				}
			}
			if activity == nil {
				return fmt.Errorf("activity %q not found in registry", args[0])
			}

			data := newScaffoldData(*activity)
			workerDir := filepath.Join(outputDir, activity.Category, activity.ID)
			files, err := renderScaffold(data)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(workerDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", workerDir, err)
			}

			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				path := filepath.Join(workerDir, name)
				if _, err := os.Stat(path); err == nil && !force {
					fmt.Fprintf(cmd.OutOrStdout(), "skip %s (exists)\n", path)
					continue
				}
				if err := os.WriteFile(path, files[name], 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&registryPath, "registry", "r", "", "Registry file (default: built-in)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "internal/workers", "Root directory for worker packages")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

func newScaffoldData(a registry.Activity) scaffoldData {
	timeout := a.Timeout
	if timeout == "" {
		timeout = "10s"
	}
	return scaffoldData{
		Dir:          filepath.ToSlash(filepath.Join("internal/workers", a.Category, a.ID)),
		PackageName:  strings.ReplaceAll(a.ID, "-", ""),
		TaskType:     a.TaskType,
		DisplayName:  a.DisplayName,
		Description:  a.Description,
		Timeout:      timeout,
		InputFields:  schemaFields(a.InputSchema),
		OutputFields: schemaFields(a.OutputSchema),
	}
}

// schemaFields turns the top-level properties of a JSON schema into struct
// fields, sorted by name so regeneration is stable.
func schemaFields(schema map[string]interface{}) []scaffoldField {
	props, _ := schema["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]scaffoldField, 0, len(names))
	for _, name := range names {
		details, _ := props[name].(map[string]interface{})
		fields = append(fields, scaffoldField{
			Name:    exportedName(name),
			Type:    goType(details["type"]),
			JSONTag: fmt.Sprintf("`json:\"%s\"`", name),
		})
	}
	return fields
}

func goType(jsonType interface{}) string {
	switch jsonType {
	case "string":
		return "string"
	case "integer":
		return "int64"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

func exportedName(s string) string {
	if s == "" {
		return s
	}
	name := strings.ToUpper(s[:1]) + s[1:]
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

var scaffoldTemplates = map[string]string{
	"config.go": `// {{ .Dir }}/config.go
package {{ .PackageName }}

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: mustDuration("{{ .Timeout }}"),
	}
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		panic(err)
	}
	return d
}
`,
	"models.go": `// {{ .Dir }}/models.go
package {{ .PackageName }}

type Input struct {
{{- range .InputFields }}
	{{ .Name }} {{ .Type }} {{ .JSONTag }}
{{- end }}
}

type Output struct {
{{- range .OutputFields }}
	{{ .Name }} {{ .Type }} {{ .JSONTag }}
{{- end }}
}
`,
	"handler.go": `// {{ .Dir }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"fmt"

	"permit-workers/internal/common/camunda"
	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "{{ .TaskType }}"

// Handler runs {{ .DisplayName }}.{{ if .Description }} {{ .Description }}{{ end }}
type Handler struct {
	config *Config
	runner *camunda.Runner
	logger logger.Logger
}

func NewHandler(config *Config, runner *camunda.Runner, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		runner: runner,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.config.Timeout, func(ctx context.Context) (interface{}, error) {
		var input Input
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return nil, apperrors.NewInternalError(fmt.Errorf("%s is not implemented", TaskType))
}
`,
}

// renderScaffold executes every template and gofmts the result.
func renderScaffold(data scaffoldData) (map[string][]byte, error) {
	out := make(map[string][]byte, len(scaffoldTemplates))
	for name, body := range scaffoldTemplates {
		tmpl, err := template.New(name).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
		out[name] = src
	}
	return out, nil
}
