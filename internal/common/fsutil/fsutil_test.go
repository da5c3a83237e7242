package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := setHome(t)
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"/tmp/models", "/tmp/models"},
		{"relative/dir", "relative/dir"},
		{"~", home},
		{"~/models/llm", filepath.Join(home, "models", "llm")},
		{"~other/models", "~other/models"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ExpandHome(c.in)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if got != c.want {
				t.Fatalf("ExpandHome(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	home := setHome(t)
	got, err := Resolve("~/history.db")
	if err != nil || got != filepath.Join(home, "history.db") {
		t.Fatalf("got %q err=%v", got, err)
	}
	got, err = Resolve("rel")
	if err != nil || !filepath.IsAbs(got) || filepath.Base(got) != "rel" {
		t.Fatalf("expected absolute path, got %q err=%v", got, err)
	}
}

func TestPathChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.gguf")
	if err := os.WriteFile(file, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !PathExists(file) || !IsFile(file) {
		t.Fatalf("file should exist and be regular")
	}
	if !PathExists(dir) || IsFile(dir) {
		t.Fatalf("dir should exist and not be a regular file")
	}
	missing := filepath.Join(dir, "missing.gguf")
	if PathExists(missing) || IsFile(missing) {
		t.Fatalf("missing path reported present")
	}
}

func TestEnsureParentDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a", "b", "history.db")
	if err := EnsureParentDir(p); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if fi, err := os.Stat(filepath.Dir(p)); err != nil || !fi.IsDir() {
		t.Fatalf("parent not created: %v", err)
	}
	if err := EnsureParentDir("plain.db"); err != nil {
		t.Fatalf("bare file name: %v", err)
	}
}
