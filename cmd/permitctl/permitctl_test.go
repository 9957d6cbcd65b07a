// cmd/permitctl/permitctl_test.go
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogValidate_BuiltIn(t *testing.T) {
	out, err := runCLI(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog valid: 4 stages, 7 requirements")
}

func TestCatalogValidate_RejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stages:\n  - id: a\n    order: 2\n"), 0o644))

	_, err := runCLI(t, "catalog", "validate", path)
	assert.Error(t, err)
}

func TestCatalogShow(t *testing.T) {
	out, err := runCLI(t, "catalog", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "document_verification")
	assert.Contains(t, out, "noc_documents (optional)")
	assert.Contains(t, out, "[structural inspection]")
}

func TestCatalogDump_RoundTrips(t *testing.T) {
	out, err := runCLI(t, "catalog", "dump")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))

	out, err = runCLI(t, "catalog", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "4 stages")
}

func TestRegistryValidateAndList(t *testing.T) {
	out, err := runCLI(t, "registry", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Registry valid: 13 activities")

	out, err = runCLI(t, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "create-inspection-schedule")
	assert.Contains(t, out, "DUPLICATE_SCHEDULE")
}

func TestRegistryExport(t *testing.T) {
	target := filepath.Join(t.TempDir(), "activities.json")
	out, err := runCLI(t, "registry", "export", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 13 activities")

	out, err = runCLI(t, "registry", "validate", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Registry valid")
}

func TestScaffold_WritesFormattedWorker(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "scaffold", "advance-stage", "--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	handler, err := os.ReadFile(filepath.Join(dir, "stages", "advance-stage", "handler.go"))
	require.NoError(t, err)
	assert.Contains(t, string(handler), "package advancestage")
	assert.Contains(t, string(handler), `const TaskType = "advance-stage"`)

	models, err := os.ReadFile(filepath.Join(dir, "stages", "advance-stage", "models.go"))
	require.NoError(t, err)
	assert.Contains(t, string(models), "ApplicationID string")

	out, err = runCLI(t, "scaffold", "advance-stage", "--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skip")
}

func TestScaffold_UnknownActivity(t *testing.T) {
	_, err := runCLI(t, "scaffold", "no-such-activity", "--output", t.TempDir())
	assert.Error(t, err)
}
