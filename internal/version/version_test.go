package version

import (
	"strings"
	"testing"
)

func TestDefaultsArePopulated(t *testing.T) {
	if Version == "" {
		t.Error("Version should never be empty after init")
	}
	if Commit == "" {
		t.Error("Commit should never be empty after init")
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if info.Version != Version || info.Commit != Commit {
		t.Errorf("Info() = %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") && !strings.HasPrefix(info.GoVersion, "devel") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
	if !strings.Contains(Full(), Commit) {
		t.Errorf("Full() = %q should contain the commit", Full())
	}
	if UserAgent() != "jitstub/"+Version {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
