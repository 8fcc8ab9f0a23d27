package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"loopmodel/internal/config"
	"loopmodel/internal/workspace"
)

// withTempHome points the workspace root at a temp directory.
func withTempHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("LOOPMODEL_HOME", "")
	return tmp
}

func TestInitAndOpen(t *testing.T) {
	tmp := withTempHome(t)

	if err := workspace.Init("kernels"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	dir := filepath.Join(tmp, ".loopmodel", "kernels")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("workspace dir not created: %v", err)
	}
	if err := workspace.Init("kernels"); err == nil {
		t.Fatal("expected error on duplicate Init")
	}
	w, err := workspace.Open("kernels")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if w.Dir != dir {
		t.Errorf("Dir mismatch: got %s want %s", w.Dir, dir)
	}
}

func TestLoopmodelHomeOverride(t *testing.T) {
	withTempHome(t)
	alt := t.TempDir()
	t.Setenv("LOOPMODEL_HOME", alt)
	if err := workspace.Init("w"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(alt, "w")); err != nil {
		t.Errorf("workspace not created under LOOPMODEL_HOME: %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	withTempHome(t)
	if _, err := workspace.Open("notexist"); err == nil {
		t.Fatal("expected error for missing workspace")
	}
}

func TestProfiles(t *testing.T) {
	withTempHome(t)
	if err := workspace.Init("w"); err != nil {
		t.Fatal(err)
	}
	w, _ := workspace.Open("w")

	cfg := config.Default()
	cfg.Machine.CacheKBytes = 256
	if err := w.AddProfile("server", cfg); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	if err := w.AddProfile("laptop", config.Default()); err != nil {
		t.Fatal(err)
	}
	if err := w.AddProfile("server", cfg); err == nil {
		t.Fatal("expected error on duplicate profile")
	}

	bad := config.Default()
	bad.Machine.Types = nil
	if err := w.AddProfile("bad", bad); err == nil {
		t.Fatal("expected validation error")
	}

	got, err := w.LoadProfile("server")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got.CacheByteN() != 256*1024 {
		t.Errorf("cache = %d", got.CacheByteN())
	}

	names, err := w.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "laptop" || names[1] != "server" {
		t.Errorf("profiles = %v", names)
	}

	if err := os.MkdirAll(filepath.Dir(w.ReportPath("server", "stencil")), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveProfile("server"); err != nil {
		t.Fatalf("RemoveProfile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Dir, "server")); !os.IsNotExist(err) {
		t.Error("report directory survived RemoveProfile")
	}
	if err := w.RemoveProfile("server"); err == nil {
		t.Error("expected error removing missing profile")
	}
}

func TestListAndRemove(t *testing.T) {
	withTempHome(t)
	if names, err := workspace.List(); err != nil || len(names) != 0 {
		t.Fatalf("List before init = %v, %v", names, err)
	}
	for _, n := range []string{"a", "b"} {
		if err := workspace.Init(n); err != nil {
			t.Fatal(err)
		}
	}
	if names, _ := workspace.List(); len(names) != 2 {
		t.Errorf("List = %v", names)
	}
	if err := workspace.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if err := workspace.Remove("a"); err == nil {
		t.Error("expected error removing missing workspace")
	}
}
