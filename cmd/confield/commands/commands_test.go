package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testCatalogYAML = `version: "1"
fragments:
  - name: cpp
    doc: C++ options
    fields:
      - name: compiler
        type: string
      - name: cc_toolchain
        default_label: //tools/cpp:current_cc_toolchain
        default_in_tools_repository: true
      - name: crosstool_top
        visibility: private
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	shutdownTelemetry()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeTestFile(t, dir, "good.yaml", testCatalogYAML)
	bad := writeTestFile(t, dir, "bad.yaml", "fragments:\n  - name: cpp\n    fields:\n      - name: x\n        type: float\n")

	out, err := runCommand(t, "validate", good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "good.yaml: 1 fragment(s)") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCommand(t, "validate", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 catalog(s) invalid") {
		t.Fatalf("expected one invalid catalog, got %v", err)
	}
	if !strings.Contains(out, "✗ "+bad) {
		t.Errorf("expected failure line for %s, got %q", bad, out)
	}
}

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	catalog := writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)
	rules := writeTestFile(t, dir, "rules.bzl", `_cc_toolchain = configuration_field(fragment = "cpp", name = "cc_toolchain")
`)
	unknown := writeTestFile(t, dir, "unknown.bzl", `
_java = configuration_field(fragment = "java", name = "javac")
`)
	public := writeTestFile(t, dir, "public.bzl", `compiler = configuration_field("cpp", "compiler")
`)

	tests := []struct {
		name    string
		args    []string
		wantOut []string
		wantErr string
	}{
		{
			name:    "lists bindings",
			args:    []string{"eval", "--catalog", catalog, rules},
			wantOut: []string{"rules.bzl: 1 late-bound default(s)", "_cc_toolchain", "cpp.cc_toolchain", "rules.bzl:1:36"},
		},
		{
			name:    "unknown fragment",
			args:    []string{"eval", "--catalog", catalog, unknown},
			wantOut: []string{"unknown.bzl:2:28: invalid configuration fragment name 'java'"},
			wantErr: "1 of 1 file(s) failed to evaluate",
		},
		{
			name:    "policy violation",
			args:    []string{"eval", "--check", "--catalog", catalog, public},
			wantOut: []string{"must be private", "[private-attribute]", "[label-type]"},
			wantErr: "1 policy violation(s)",
		},
		{
			name:    "missing catalog",
			args:    []string{"eval", rules},
			wantErr: "a catalog is required",
		},
		{
			name:    "bad define",
			args:    []string{"eval", "--catalog", catalog, "--define", "novalue", rules},
			wantErr: "expected name=value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, tt.args...)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestEvalCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	catalog := writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)
	rules := writeTestFile(t, dir, "rules.bzl", `
def attr(default):
    return {"default": default}

attrs = {"_compiler": attr(configuration_field("cpp", "compiler")), "name": attr(prefix)}
`)

	out, err := runCommand(t, "eval", "--json", "--catalog", catalog, "--define", "prefix=lib", rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report struct {
		Files []struct {
			Bindings []struct {
				Path      string `json:"path"`
				Attribute string `json:"attribute"`
			} `json:"bindings"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(report.Files) != 1 || len(report.Files[0].Bindings) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if b := report.Files[0].Bindings[0]; b.Path != "attrs._compiler.default" || b.Attribute != "_compiler" {
		t.Errorf("unexpected binding: %+v", b)
	}
}

func TestCatalogCommands(t *testing.T) {
	dir := t.TempDir()
	catalog := writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)
	db := filepath.Join(dir, "confield.db")

	out, err := runCommand(t, "catalog", "import", "--db", db, catalog)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 1 fragment(s)") {
		t.Errorf("unexpected import output: %q", out)
	}

	out, err = runCommand(t, "catalog", "list", "--db", db)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "cpp") || !strings.Contains(out, "C++ options") {
		t.Errorf("unexpected list output: %q", out)
	}

	out, err = runCommand(t, "catalog", "show", "--db", db, "cpp")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "//tools/cpp:current_cc_toolchain (tools repository)") {
		t.Errorf("unexpected show output: %q", out)
	}

	if _, err := runCommand(t, "catalog", "show", "--db", db, "java"); err == nil ||
		err.Error() != "invalid configuration fragment name 'java'" {
		t.Errorf("expected unknown fragment error, got %v", err)
	}

	out, err = runCommand(t, "catalog", "history", "--db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, catalog) {
		t.Errorf("unexpected history output: %q", out)
	}

	rules := writeTestFile(t, dir, "rules.bzl", `_c = configuration_field("cpp", "compiler")`)
	out, err = runCommand(t, "eval", "--db", db, rules)
	if err != nil {
		t.Fatalf("eval against store failed: %v", err)
	}
	if !strings.Contains(out, "cpp.compiler") {
		t.Errorf("unexpected eval output: %q", out)
	}
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	catalog := writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)
	rules := writeTestFile(t, dir, "rules.bzl", `
_compiler = configuration_field("cpp", "compiler")
_cc_toolchain = configuration_field("cpp", "cc_toolchain")
`)
	instance := writeTestFile(t, dir, "instance.yaml", "fragments:\n  cpp:\n    compiler: gcc\n")

	out, err := runCommand(t, "resolve", "--json", "--catalog", catalog, "--instance", instance, rules)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var got []resolvedBinding
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := []resolvedBinding{
		{Path: "_cc_toolchain", Fragment: "cpp", Field: "cc_toolchain", Value: "@bazel_tools//tools/cpp:current_cc_toolchain"},
		{Path: "_compiler", Fragment: "cpp", Field: "compiler", Value: "gcc"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved mismatch (-want +got):\n%s", diff)
	}

	empty := writeTestFile(t, dir, "empty.yaml", "fragments: {}\n")
	if _, err := runCommand(t, "resolve", "--catalog", catalog, "--instance", empty, rules); err == nil ||
		!strings.Contains(err.Error(), "2 of 2 late-bound default(s) could not be resolved") {
		t.Errorf("expected resolution failures, got %v", err)
	}
}

func TestParseDefines(t *testing.T) {
	tests := []struct {
		name    string
		defines []string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "none", want: nil},
		{
			name:    "typed scalars",
			defines: []string{"n=3", "debug=true", "platform=linux", "empty="},
			want:    map[string]interface{}{"n": 3, "debug": true, "platform": "linux", "empty": ""},
		},
		{name: "missing equals", defines: []string{"platform"}, wantErr: true},
		{name: "missing name", defines: []string{"=linux"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDefines(tt.defines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDefines() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("inputs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadAppConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadAppConfig("")
	if err != nil {
		t.Fatalf("defaults failed: %v", err)
	}
	if cfg.ToolsRepository != "@bazel_tools" || cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	good := writeTestFile(t, dir, "confield.yaml", `catalog: catalog.cue
tools_repository: "@my_tools"
timeout: 5s
telemetry:
  log_level: debug
  trace_exporter: none
`)
	cfg, err = LoadAppConfig(good)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Catalog != "catalog.cue" || cfg.ToolsRepository != "@my_tools" || cfg.Timeout != 5*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}

	tests := map[string]string{
		"tools repository without @": "tools_repository: bazel_tools\n",
		"unknown log level":          "telemetry:\n  log_level: loud\n",
		"otlp without endpoint":      "telemetry:\n  trace_exporter: otlp\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeTestFile(t, dir, "bad.yaml", content)
			if _, err := LoadAppConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWatchRunner_Serializes(t *testing.T) {
	var active, maxActive, runs int32
	runner := &watchRunner{run: func() error {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&runs, 1)
		return nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = runner.Rerun()
			} else {
				err = runner.Reload(context.Background(), nil)
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if runs != 10 {
		t.Errorf("expected 10 runs, got %d", runs)
	}
	if maxActive != 1 {
		t.Errorf("expected runs to be serialized, saw %d at once", maxActive)
	}
}
