package version

import (
	"strings"
	"testing"
)

func TestFullIncludesInjectedValues(t *testing.T) {
	prevVersion, prevCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = prevVersion, prevCommit })

	Version, Commit = "9.9.9", "abc123"
	got := Full()
	if !strings.HasPrefix(got, "cache-info 9.9.9 (abc123, go") {
		t.Fatalf("unexpected version string: %s", got)
	}
}
