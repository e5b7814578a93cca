package gitsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestMirrorSyncCopiesTree(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "main.lua"), "print('hi')")
	writeFile(t, filepath.Join(src, "assets", "icon.png"), "png")
	writeFile(t, filepath.Join(src, "assets", "deep", "data.json"), "{}")

	engine := New(zerolog.Nop())
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	if got := readFile(t, filepath.Join(dst, "main.lua")); got != "print('hi')" {
		t.Errorf("got %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "assets", "deep", "data.json")); got != "{}" {
		t.Errorf("got %q", got)
	}
}

func TestMirrorSyncPropagatesDeletions(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "kept.lua"), "kept")
	writeFile(t, filepath.Join(dst, "stale.lua"), "stale")
	writeFile(t, filepath.Join(dst, "stale_dir", "old.txt"), "old")

	engine := New(zerolog.Nop())
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	if _, err := os.Stat(filepath.Join(dst, "stale.lua")); !os.IsNotExist(err) {
		t.Error("stale file survived the sync")
	}
	if _, err := os.Stat(filepath.Join(dst, "stale_dir")); !os.IsNotExist(err) {
		t.Error("stale directory survived the sync")
	}
	if got := readFile(t, filepath.Join(dst, "kept.lua")); got != "kept" {
		t.Errorf("got %q", got)
	}
}

func TestMirrorSyncPreservesGitDir(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "main.lua"), "src")
	writeFile(t, filepath.Join(dst, GitDir, "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(dst, GitDir, "config"), "[core]")

	engine := New(zerolog.Nop())
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	if got := readFile(t, filepath.Join(dst, GitDir, "HEAD")); got != "ref: refs/heads/main" {
		t.Errorf("git metadata touched: %q", got)
	}
}

func TestMirrorSyncSkipsGitDirInSource(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "main.lua"), "src")
	writeFile(t, filepath.Join(src, GitDir, "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(src, "nested", GitDir, "HEAD"), "nested repo")
	writeFile(t, filepath.Join(src, "nested", "file.txt"), "n")

	engine := New(zerolog.Nop())
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	if _, err := os.Stat(filepath.Join(dst, GitDir, "HEAD")); !os.IsNotExist(err) {
		t.Error("source git metadata copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "nested", GitDir)); !os.IsNotExist(err) {
		t.Error("nested git metadata copied")
	}
	if got := readFile(t, filepath.Join(dst, "nested", "file.txt")); got != "n" {
		t.Errorf("got %q", got)
	}
}

func TestMirrorSyncSkipsTransientFiles(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "scene.tscn"), "scene")
	writeFile(t, filepath.Join(src, "scene.tscn.import"), "meta")
	writeFile(t, filepath.Join(src, "build.tmp"), "tmp")
	writeFile(t, filepath.Join(src, "sub", "asset.import"), "meta")

	engine := New(zerolog.Nop())
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	for _, name := range []string{"scene.tscn.import", "build.tmp", filepath.Join("sub", "asset.import")} {
		if _, err := os.Stat(filepath.Join(dst, name)); !os.IsNotExist(err) {
			t.Errorf("transient file %s copied", name)
		}
	}
	if got := readFile(t, filepath.Join(dst, "scene.tscn")); got != "scene" {
		t.Errorf("got %q", got)
	}
}

func TestMirrorSyncCustomSkipExtensions(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "notes.bak"), "bak")
	writeFile(t, filepath.Join(src, "meta.import"), "meta")

	engine := New(zerolog.Nop(), WithSkipExtensions(".bak"))
	if res := engine.MirrorSync(src, dst); !res.OK() {
		t.Fatalf("mirror sync: %s", res.Message())
	}

	if _, err := os.Stat(filepath.Join(dst, "notes.bak")); !os.IsNotExist(err) {
		t.Error(".bak file copied despite custom skip list")
	}
	// The custom list replaces the default, so .import files now pass.
	if got := readFile(t, filepath.Join(dst, "meta.import")); got != "meta" {
		t.Errorf("got %q", got)
	}
}

func TestMirrorSyncMissingPaths(t *testing.T) {
	engine := New(zerolog.Nop())
	dir := t.TempDir()

	if res := engine.MirrorSync(filepath.Join(dir, "absent"), dir); res.OK() {
		t.Error("sync from missing source succeeded")
	}
	if res := engine.MirrorSync(dir, filepath.Join(dir, "absent")); res.OK() {
		t.Error("sync to missing destination succeeded")
	}
}
