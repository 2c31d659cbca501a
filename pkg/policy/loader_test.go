package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Rejects the apple fragment
# severity: error
package test.no_apple

import rego.v1

deny contains msg if {
	some b in input.bindings
	b.fragment == "apple"
	msg := "apple is unsupported"
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "no-apple.rego")
	writeFile(t, policyFile, testRego)

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	policy := policies[0]
	if policy.Name != "no-apple" {
		t.Errorf("Expected name 'no-apple', got '%s'", policy.Name)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity from comment, got %s", policy.Severity)
	}
	if policy.Description != "Rejects the apple fragment" {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "policy.json")
	data, err := json.Marshal(Policy{
		Name:    "json-policy",
		Rego:    testRego,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "json-policy" {
		t.Fatalf("Unexpected policies: %+v", policies)
	}
	if policies[0].Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policies[0].Severity)
	}
	if policies[0].Metadata["source"] != policyFile {
		t.Errorf("Expected source metadata, got %v", policies[0].Metadata)
	}
}

func TestLoadFromFile_JSONBundle(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	bundleFile := filepath.Join(t.TempDir(), "bundle.json")
	data, err := json.Marshal(PolicyBundle{
		Name:    "team-bundle",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "p1", Rego: "package p1\n\nimport rego.v1\n\ndeny contains \"x\" if { false }", Severity: SeverityError, Enabled: true},
			{Name: "p2", Rego: "package p2\n\nimport rego.v1\n\ndeny contains \"y\" if { false }", Enabled: true},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	writeFile(t, bundleFile, string(data))

	policies, err := loader.loadFromFile(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle file: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[1].Severity != SeverityWarning {
		t.Errorf("Expected default severity for p2, got %s", policies[1].Severity)
	}

	bundle, err := loader.LoadBundle(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if bundle.Name != "team-bundle" || bundle.Version != "1.0.0" {
		t.Errorf("Unexpected bundle header: %s %s", bundle.Name, bundle.Version)
	}
}

func TestLoadFromFile_JSONMissingRego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "empty.json")
	writeFile(t, policyFile, `{"name": "empty"}`)

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for policy without rego")
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "a.rego"), testRego)
	writeFile(t, filepath.Join(tmpDir, "nested", "b.rego"), testRego)
	writeFile(t, filepath.Join(tmpDir, "README.md"), "not a policy")
	writeFile(t, filepath.Join(tmpDir, "broken.json"), "invalid json")

	policies, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load from directory: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "single.rego")
	dir := filepath.Join(tmpDir, "dir")
	writeFile(t, file, testRego)
	writeFile(t, filepath.Join(dir, "other.rego"), testRego)

	policies, err := loader.LoadFromPaths(context.Background(), []string{file, dir})
	if err != nil {
		t.Fatalf("Failed to load from paths: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/path"}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestLoadPolicies_IntoEngine(t *testing.T) {
	eng := newTestEngine(t)

	file := filepath.Join(t.TempDir(), "no-apple.rego")
	writeFile(t, file, testRego)

	if err := eng.LoadPolicies(context.Background(), []string{file}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	b := labelBinding("_xcode", "_xcode")
	b.Fragment = "apple"
	result, err := eng.EvaluateBindings(context.Background(), []BindingInput{b})
	if err != nil {
		t.Fatalf("EvaluateBindings failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected loaded error policy to reject")
	}
	if got := result.Violations[0]; got.Policy != "no-apple" || got.Message != "apple is unsupported" {
		t.Errorf("Unexpected violation: %+v", got)
	}
}

func TestExtractDescription(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "single line comment",
			content:  "# Checks bindings\npackage test",
			expected: "Checks bindings",
		},
		{
			name:     "multi line comments",
			content:  "# Checks bindings\n# that use cpp\npackage test",
			expected: "Checks bindings that use cpp",
		},
		{
			name:     "severity comment skipped",
			content:  "# Checks bindings\n# severity: error\npackage test",
			expected: "Checks bindings",
		},
		{
			name:     "no comments",
			content:  "package test",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loader.extractDescription(tt.content); got != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "test.rego")
	writeFile(t, policyFile, testRego)

	if _, err := loader.loadFromFile(context.Background(), policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()

	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, policyFile, "not a policy")

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "new.rego"), testRego)

	select {
	case policies := <-reloaded:
		if len(policies) != 1 || policies[0].Name != "new" {
			t.Errorf("Unexpected reloaded policies: %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
