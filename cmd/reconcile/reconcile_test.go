package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/workspace"
	"github.com/scan-io-git/scanio-ide/pkg/shared/config"
	"github.com/scan-io-git/scanio-ide/pkg/shared/errors"
)

const mainJava = "class Main {\n    call();\n}\n"

const oneResult = `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "Semgrep", "rules": [{"id": "java/call"}]}},
    "results": [{
      "ruleId": "java/call",
      "level": "error",
      "message": {"text": "Suspicious call"},
      "locations": [{"physicalLocation": {
        "artifactLocation": {"uri": "src/Main.java"},
        "region": {"startLine": 2, "startColumn": 5, "endLine": 2, "endColumn": 10}
      }}]
    }]
  }]
}`

const noResults = `{
  "version": "2.1.0",
  "runs": [{"tool": {"driver": {"name": "Semgrep"}}, "results": []}]
}`

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Main.java"), []byte(mainJava), 0o644))
	return root
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	root := setupProject(t)
	report := writeFile(t, "report.sarif", oneResult)

	tests := []struct {
		name    string
		opts    RunOptions
		wantErr string
	}{
		{name: "valid", opts: RunOptions{SarifPath: report, SourceFolder: root}},
		{name: "source folder optional", opts: RunOptions{SarifPath: report}},
		{name: "missing sarif", opts: RunOptions{SourceFolder: root}, wantErr: "--sarif is required"},
		{name: "sarif does not exist", opts: RunOptions{SarifPath: filepath.Join(root, "nope.sarif")}, wantErr: "--sarif"},
		{name: "source folder is a file", opts: RunOptions{SarifPath: report, SourceFolder: report}, wantErr: "not a directory"},
		{name: "project with NUL", opts: RunOptions{SarifPath: report, Project: "a\x00b"}, wantErr: "NUL"},
		{name: "blank category", opts: RunOptions{SarifPath: report, Category: "  "}, wantErr: "blank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.opts)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunInMemory(t *testing.T) {
	root := setupProject(t)
	cfg := config.Default()
	cfg.Storage.InMemory = true

	out, err := Run(context.Background(), cfg, RunOptions{
		SarifPath:    writeFile(t, "report.sarif", oneResult),
		SourceFolder: root,
	}, hclog.NewNullLogger())
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(root), out.Project)
	assert.Equal(t, config.DefaultCategory, out.Category)
	assert.Equal(t, 1, out.Created)
	assert.Empty(t, out.Failed)
	assert.Equal(t, uint64(1), out.Notifications)

	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, "src/Main.java", rec.Resource)
	assert.Equal(t, "java/call", rec.RuleKey)
	assert.Equal(t, "error", rec.Severity)
	assert.Equal(t, "Suspicious call", rec.Message)
	require.NotNil(t, rec.LineNumber)
	assert.Equal(t, int32(2), *rec.LineNumber)
	assert.NotEmpty(t, rec.AnnotationID)
}

func TestRunKeepsIdentityAcrossRuns(t *testing.T) {
	root := setupProject(t)
	stateDir := t.TempDir()
	cfg := config.Default()
	opts := RunOptions{
		SarifPath:    writeFile(t, "report.sarif", oneResult),
		SourceFolder: root,
		Project:      "demo",
		StateDir:     stateDir,
	}

	first, err := Run(context.Background(), cfg, opts, nil)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)

	// shift the finding one line down
	shifted := "// header\n" + mainJava
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Main.java"), []byte(shifted), 0o644))
	shiftedReport := writeFile(t, "shifted.sarif", `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "Semgrep"}},
    "results": [{
      "ruleId": "java/call",
      "level": "error",
      "message": {"text": "Suspicious call"},
      "locations": [{"physicalLocation": {
        "artifactLocation": {"uri": "src/Main.java"},
        "region": {"startLine": 3, "startColumn": 5, "endLine": 3, "endColumn": 10}
      }}]
    }]
  }]
}`)
	opts.SarifPath = shiftedReport

	second, err := Run(context.Background(), cfg, opts, nil)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.Equal(t, first.Records[0].AnnotationID, second.Records[0].AnnotationID)
	assert.Equal(t, first.Records[0].CreationDate, second.Records[0].CreationDate)
	assert.Equal(t, int32(3), *second.Records[0].LineNumber)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)

	opts.SarifPath = writeFile(t, "empty.sarif", noResults)
	third, err := Run(context.Background(), cfg, opts, nil)
	require.NoError(t, err)
	assert.Empty(t, third.Records)
	assert.Equal(t, 1, third.Deleted)
}

func TestRunMissingReport(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.InMemory = true

	_, err := Run(context.Background(), cfg, RunOptions{
		SarifPath:    filepath.Join(t.TempDir(), "missing.sarif"),
		SourceFolder: setupProject(t),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 2, errors.ExitCode(err))
}

func TestRequestsDropsVanishedResources(t *testing.T) {
	grouped := map[workspace.Resource][]findings.Finding{
		"b.go": {{RuleID: "r"}},
		"a.go": {{RuleID: "r"}},
	}
	reqs := requests(grouped, []string{"a.go", "gone.go"})

	require.Len(t, reqs, 3)
	assert.Equal(t, workspace.Resource("a.go"), reqs[0].Resource)
	assert.Equal(t, workspace.Resource("b.go"), reqs[1].Resource)
	assert.Equal(t, workspace.Resource("gone.go"), reqs[2].Resource)
	assert.Empty(t, reqs[2].Findings)
}
