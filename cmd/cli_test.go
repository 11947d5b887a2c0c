package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	persistence "github.com/khanhnv2901/seca-gap/internal/infrastructure/persistence/json"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// executeCLI runs the command tree in-process against resultsDir.
func executeCLI(t *testing.T, resultsDir string, args ...string) (string, error) {
	t.Helper()
	disableColor(t)
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--results-dir", resultsDir}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func newProtectedSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/admin">admin</a></body></html>`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAssessValidateMerge(t *testing.T) {
	srv := newProtectedSite(t)
	dir := t.TempDir()

	out, err := executeCLI(t, dir, "assess", srv.URL,
		"--modules", "authorization",
		"--run-id", "cli-run",
		"--rate", "1000", "--burst", "100",
		"--retries", "1",
		"--json")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	var batch assessment.BatchResult
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("decode batch output: %v\n%s", err, out)
	}
	if batch.RunID != "cli-run" || batch.ReportType != assessment.ReportType {
		t.Fatalf("unexpected batch header %+v", batch)
	}
	if len(batch.Modules) != 1 || batch.OverallSummary.Total != 5 {
		t.Fatalf("expected one module with 5 controls, got %d modules %+v", len(batch.Modules), batch.OverallSummary)
	}

	batchPath := filepath.Join(dir, "cli-run", persistence.BatchFileName)
	if _, err := os.Stat(batchPath + ".sha256"); err != nil {
		t.Fatalf("expected checksum sidecar: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, persistence.TelemetryFileName)); err != nil {
		t.Fatalf("expected telemetry log: %v", err)
	}

	out, err = executeCLI(t, dir, "validate", "--run", "cli-run")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if strings.Count(out, "✓") != 2 {
		t.Fatalf("expected module and batch file to validate, got:\n%s", out)
	}

	if err := os.Remove(batchPath); err != nil {
		t.Fatal(err)
	}
	out, err = executeCLI(t, dir, "merge")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "Merged 1 module results") {
		t.Fatalf("unexpected merge output:\n%s", out)
	}
	if _, err := os.Stat(batchPath); err != nil {
		t.Fatalf("merge did not rewrite batch: %v", err)
	}
}

func TestAssessHumanOutput(t *testing.T) {
	srv := newProtectedSite(t)
	out, err := executeCLI(t, t.TempDir(), "assess", srv.URL,
		"--modules", "3",
		"--rate", "1000", "--burst", "100", "--skip-burst",
		"--progress=false", "--telemetry=false", "--details")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	for _, want := range []string{"Target " + srv.URL, "[3]", "Overall:", "Results written to"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAssessConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no targets", args: []string{"assess"}, want: ExitNoTargets},
		{name: "unknown module", args: []string{"assess", "https://a.example", "--modules", "nope"}, want: ExitConfig},
		{name: "bad backoff", args: []string{"assess", "https://a.example", "--backoff", "linear"}, want: ExitConfig},
		{name: "negative workers", args: []string{"assess", "https://a.example", "--workers=-1"}, want: ExitConfig},
		{name: "negative depth", args: []string{"assess", "https://a.example", "--depth=-1"}, want: ExitConfig},
		{name: "negative timeout", args: []string{"assess", "https://a.example", "--timeout-per-unit=-5s"}, want: ExitConfig},
		{name: "unknown flag", args: []string{"assess", "--bogus"}, want: ExitConfig},
		{name: "missing config file", args: []string{"--config", "/nonexistent/seca-gap.yaml", "modules", "list"}, want: ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCLI(t, t.TempDir(), tt.args...)
			if got := exitCode(err); got != tt.want {
				t.Fatalf("exit code = %d (%v), want %d", got, err, tt.want)
			}
		})
	}
}

func TestValidateDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.json")
	if err := os.WriteFile(path, []byte(`{"module":"x"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".sha256", []byte("00  module.json\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := executeCLI(t, dir, "validate", path)
	if !errors.Is(err, sharedErrors.ErrSchemaViolation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if !strings.Contains(out, "checksum mismatch") {
		t.Fatalf("expected checksum mismatch in output:\n%s", out)
	}
}

func TestMergeUnknownRun(t *testing.T) {
	_, err := executeCLI(t, t.TempDir(), "merge", "missing")
	if !errors.Is(err, sharedErrors.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestModulesCommands(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCLI(t, dir, "modules", "list")
	if err != nil {
		t.Fatalf("modules list: %v", err)
	}
	if !strings.Contains(out, "8 modules, 65 controls") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out, err = executeCLI(t, dir, "modules", "list", "--json")
	if err != nil {
		t.Fatalf("modules list --json: %v", err)
	}
	var descriptors []map[string]any
	if err := json.Unmarshal([]byte(out), &descriptors); err != nil || len(descriptors) != 8 {
		t.Fatalf("expected 8 descriptors, got %d (%v)", len(descriptors), err)
	}

	out, err = executeCLI(t, dir, "modules", "show", "authorization")
	if err != nil {
		t.Fatalf("modules show: %v", err)
	}
	if !strings.Contains(out, "authorization") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	if _, err := executeCLI(t, dir, "modules", "show", "nope"); !errors.Is(err, sharedErrors.ErrUnknownModule) {
		t.Fatalf("expected unknown module, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCLI(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "seca-gap version "+Version) {
		t.Fatalf("unexpected version output %q", out)
	}
}
