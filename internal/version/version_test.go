package version

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMajor(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		expected    int
		expectError bool
	}{
		{"simple", "1.0.0", 1, false},
		{"leading v", "v2.3.1", 2, false},
		{"major only", "7", 7, false},
		{"zero major", "0.9.1", 0, false},
		{"surrounding whitespace", " 3.1.0\n", 3, false},
		{"empty", "", 0, true},
		{"dev build", "dev", 0, true},
		{"negative", "-1.0.0", 0, true},
		{"garbage major", "x.1.0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Major(tt.version)

			if tt.expectError && err == nil {
				t.Errorf("Major(%q): expected error but got none", tt.version)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Major(%q): unexpected error: %v", tt.version, err)
			}
			if got != tt.expected {
				t.Errorf("Major(%q) = %d, want %d", tt.version, got, tt.expected)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back", func(t *testing.T) {
		if got := Resolve(filepath.Join(dir, "nope")); got != Version {
			t.Errorf("expected %q, got %q", Version, got)
		}
	})

	t.Run("file contents are trimmed", func(t *testing.T) {
		path := filepath.Join(dir, "VERSION")
		if err := os.WriteFile(path, []byte("1.4.2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := Resolve(path); got != "1.4.2" {
			t.Errorf("expected 1.4.2, got %q", got)
		}
	})

	t.Run("empty file falls back", func(t *testing.T) {
		path := filepath.Join(dir, "EMPTY")
		if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := Resolve(path); got != Version {
			t.Errorf("expected %q, got %q", Version, got)
		}
	})
}
