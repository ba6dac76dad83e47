package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := resolve(bi)
	if info.Version != "v0.3.1" || info.Commit != "0123456789abcdef0123" || !info.Modified {
		t.Fatalf("info = %+v", info)
	}
	if info.BuildTime != "2026-10-01T12:00:00Z" {
		t.Fatalf("build time = %q", info.BuildTime)
	}
}

func TestResolveFallsBackToDev(t *testing.T) {
	info := resolve(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "dev" || info.GoVersion == "" {
		t.Fatalf("info = %+v", info)
	}
	if info := resolve(nil); info.Version != "dev" {
		t.Fatalf("nil build info: %+v", info)
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
