package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithinValidPath(t *testing.T) {
	base := t.TempDir()

	resolved, err := ResolveWithin(base, "run-1", "module.json")
	if err != nil {
		t.Fatalf("ResolveWithin returned error: %v", err)
	}
	if !strings.HasPrefix(resolved, base) {
		t.Fatalf("expected resolved path %s to stay within base %s", resolved, base)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		t.Fatalf("failed to create parent dirs: %v", err)
	}
	if err := os.WriteFile(resolved, []byte("ok"), 0o600); err != nil {
		t.Fatalf("failed to write resolved file: %v", err)
	}
}

func TestResolveWithinBlocksEscape(t *testing.T) {
	base := t.TempDir()
	if _, err := ResolveWithin(base, "..", "etc", "passwd"); !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected path escape error, got %v", err)
	}
	if _, err := ResolveWithin("", "some"); err == nil {
		t.Fatal("expected error for empty base directory")
	}
}

func TestResolveChild(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: "0b6f8a52-run", wantErr: false},
		{name: "batch_result.json", wantErr: false},
		{name: "", wantErr: true},
		{name: ".", wantErr: true},
		{name: "..", wantErr: true},
		{name: "a/b", wantErr: true},
		{name: `..\evil`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveChild(base, tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrNotChild) {
					t.Fatalf("ResolveChild(%q) error = %v, want ErrNotChild", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveChild(%q): %v", tt.name, err)
			}
			if filepath.Dir(got) != base {
				t.Fatalf("ResolveChild(%q) = %s, want a child of %s", tt.name, got, base)
			}
		})
	}
}
