package ui

import (
	"strings"
	"testing"
)

func TestKeyValues(t *testing.T) {
	out := KeyValues("  ", KV("deployment", "deploy.yaml"), KV("apps", "app.yaml"))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "deployment:") || !strings.Contains(lines[0], "deploy.yaml") {
		t.Fatalf("first line = %q, want deployment pair", lines[0])
	}
	if !strings.Contains(lines[1], "apps:") || !strings.Contains(lines[1], "app.yaml") {
		t.Fatalf("second line = %q, want apps pair", lines[1])
	}
	if !strings.HasPrefix(lines[1], "  ") {
		t.Fatalf("second line = %q, want indented", lines[1])
	}
}

func TestConfigureInteraction(t *testing.T) {
	t.Run("explicit no-interaction wins", func(t *testing.T) {
		ConfigureInteraction(true)
		if IsInteractive() {
			t.Fatal("IsInteractive() = true after ConfigureInteraction(true)")
		}
	})

	t.Run("CI environment disables interaction", func(t *testing.T) {
		t.Setenv("CI", "true")
		ConfigureInteraction(false)
		if IsInteractive() {
			t.Fatal("IsInteractive() = true in a CI environment")
		}
	})
}
