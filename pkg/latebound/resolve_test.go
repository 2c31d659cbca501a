package latebound

import (
	"errors"
	"math"
	"testing"

	"github.com/confield/confield/pkg/fragments"
	"github.com/google/go-cmp/cmp"
)

func TestDefault_Resolve(t *testing.T) {
	cpp := fragments.MustFragmentType("cpp", "",
		fragments.Field{Name: "compiler", Type: fragments.ValueTypeLabel},
		fragments.Field{Name: "copts", Type: fragments.ValueTypeStringList},
		fragments.Field{Name: "deps", Type: fragments.ValueTypeLabelList},
		fragments.Field{Name: "opt", Type: fragments.ValueTypeBool},
		fragments.Field{Name: "jobs", Type: fragments.ValueTypeInt},
		fragments.Field{Name: "mode", Type: fragments.ValueTypeString},
		fragments.Field{Name: "cc_toolchain", DefaultLabel: "//tools/cpp:current_cc_toolchain", DefaultInToolsRepository: true},
		fragments.Field{Name: "linker"},
		fragments.Field{Name: "threads", Type: fragments.ValueTypeInt},
		fragments.Field{Name: "overflow", Type: fragments.ValueTypeInt},
	)

	cfg := NewConfiguration(fragments.NewMapInstance("cpp", map[string]any{
		"compiler": "@local_config_cc//:gcc",
		"copts":    []any{"-O2", "-g"},
		"deps":     []string{"//a:b"},
		"opt":      true,
		"jobs":     8,
		"mode":     "fastbuild",
		"linker":   42,
		"threads":  uint64(16),
		"overflow": uint64(math.MaxInt64) + 1,
	}))

	tests := []struct {
		field   string
		want    any
		wantErr error
	}{
		{field: "compiler", want: "@local_config_cc//:gcc"},
		{field: "copts", want: []string{"-O2", "-g"}},
		{field: "deps", want: []string{"//a:b"}},
		{field: "opt", want: true},
		{field: "jobs", want: int64(8)},
		{field: "mode", want: "fastbuild"},
		{field: "cc_toolchain", want: "@bazel_tools//tools/cpp:current_cc_toolchain"},
		{field: "linker", wantErr: ErrTypeMismatch},
		{field: "threads", want: int64(16)},
		{field: "overflow", wantErr: ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			d, err := ForConfigurationField(cpp, tt.field, "@bazel_tools")
			if err != nil {
				t.Fatalf("bind failed: %v", err)
			}

			got, err := d.Resolve(cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefault_ResolveErrors(t *testing.T) {
	cpp := fragments.MustFragmentType("cpp", "", fragments.Field{Name: "compiler"})
	d, _ := ForConfigurationField(cpp, "compiler", "")

	if _, err := d.Resolve(NewConfiguration()); !errors.Is(err, ErrFragmentNotConfigured) {
		t.Errorf("expected ErrFragmentNotConfigured, got %v", err)
	}

	empty := NewConfiguration(fragments.NewMapInstance("cpp", nil))
	if _, err := d.Resolve(empty); !errors.Is(err, ErrNoValue) {
		t.Errorf("expected ErrNoValue, got %v", err)
	}

	wrong := MapConfiguration{"cpp": fragments.NewMapInstance("java", map[string]any{"compiler": "//x:y"})}
	if _, err := d.Resolve(wrong); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDefault_ResolveAcrossConfigurations(t *testing.T) {
	cpp := fragments.MustFragmentType("cpp", "", fragments.Field{Name: "compiler"})
	d, _ := ForConfigurationField(cpp, "compiler", "")

	gcc := NewConfiguration(fragments.NewMapInstance("cpp", map[string]any{"compiler": "//tools:gcc"}))
	clang := NewConfiguration(fragments.NewMapInstance("cpp", map[string]any{"compiler": "//tools:clang"}))

	for want, cfg := range map[string]MapConfiguration{"//tools:gcc": gcc, "//tools:clang": clang} {
		got, err := d.Resolve(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Resolve() = %v, want %v", got, want)
		}
	}

	if d.FragmentName() != "cpp" || d.FieldName() != "compiler" || d.ToolsRepository() != "" {
		t.Error("descriptor changed after resolution")
	}
}

func TestParseConfigurationYAML(t *testing.T) {
	data := []byte(`
fragments:
  cpp:
    compiler: //tools/cpp:gcc
    copts: ["-O2"]
  java:
    java_home: /usr/lib/jvm
`)
	cfg, err := ParseConfigurationYAML(data)
	if err != nil {
		t.Fatalf("ParseConfigurationYAML() failed: %v", err)
	}

	inst, ok := cfg.Fragment("cpp")
	if !ok {
		t.Fatal("expected cpp fragment")
	}
	if v, _ := inst.Value("compiler"); v != "//tools/cpp:gcc" {
		t.Errorf("compiler = %v", v)
	}
	if _, ok := cfg.Fragment("apple"); ok {
		t.Error("unexpected apple fragment")
	}

	if _, err := ParseConfigurationYAML([]byte("fragments: [")); err == nil {
		t.Error("expected parse error")
	}
}
