package version

import (
	"strings"
	"testing"
)

func TestFullIncludesCommit(t *testing.T) {
	if !strings.HasPrefix(Full(), "asset-hub "+Version) {
		t.Fatalf("unexpected version string %q", Full())
	}
	if !strings.Contains(Full(), Commit) {
		t.Fatalf("commit missing from %q", Full())
	}
	if UserAgent() != "asset-hub/"+Version {
		t.Fatalf("unexpected user agent %q", UserAgent())
	}
}
