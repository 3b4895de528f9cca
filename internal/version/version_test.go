package version

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	if Version == "" || BuildTime == "" || GitCommit == "" {
		t.Fatal("version variables must be initialized")
	}
}

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	got := String()
	if !strings.HasPrefix(got, "projectbuilder v9.9.9") {
		t.Errorf("unexpected version line: %q", got)
	}
	if !strings.Contains(got, "commit "+GitCommit) {
		t.Errorf("missing commit: %q", got)
	}
}
