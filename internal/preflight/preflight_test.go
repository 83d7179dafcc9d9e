package preflight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depot/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.OK {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.OK {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.OK {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckKeysFile(t *testing.T) {
	missing := CheckKeysFile(filepath.Join(t.TempDir(), "prod.keys"))
	if missing.OK || missing.Fatal {
		t.Fatalf("missing keys should warn, got %+v", missing)
	}

	path := filepath.Join(t.TempDir(), "prod.keys")
	if err := os.WriteFile(path, []byte("header_key = 00\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	present := CheckKeysFile(path)
	if !present.OK {
		t.Fatalf("expected pass for present keys, got: %s", present.Detail)
	}

	unset := CheckKeysFile("")
	if unset.OK || !strings.Contains(unset.Detail, "not configured") {
		t.Fatalf("unexpected result for empty path: %+v", unset)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	ok := CheckFreeSpace(dir, 1)
	if !ok.OK {
		t.Fatalf("expected pass with 1-byte floor, got: %s", ok.Detail)
	}

	low := CheckFreeSpace(dir, math.MaxUint64)
	if low.OK {
		t.Fatal("expected failure with impossible floor")
	}
	if !strings.Contains(low.Detail, "floor") {
		t.Fatalf("detail should mention the floor: %s", low.Detail)
	}
}

func TestCheckCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	ctx := context.Background()
	empty := CheckCatalog(ctx, store, "en-US")
	if empty.OK {
		t.Fatal("empty catalog should warn")
	}
	if !strings.Contains(empty.Detail, "catalog refresh") {
		t.Fatalf("detail should point at the fix: %s", empty.Detail)
	}

	if _, err := store.ImportLocale(ctx, "en-US", "", strings.NewReader(`{"1": {"id": "0100ABCD00000000", "name": "Sample Quest"}}`)); err != nil {
		t.Fatalf("import locale: %v", err)
	}
	full := CheckCatalog(ctx, store, "en-US")
	if !full.OK {
		t.Fatalf("expected pass after import, got: %s", full.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MarksDirectoryChecksFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, nil)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}

	byName := make(map[string]Result, len(results))
	for _, result := range results {
		byName[result.Name] = result
	}
	for _, name := range []string{"ROM directory", "Staging directory"} {
		check, ok := byName[name]
		if !ok {
			t.Fatalf("missing check %q", name)
		}
		if !check.OK || !check.Fatal {
			t.Fatalf("%s should pass and be fatal: %+v", name, check)
		}
	}
	keys := byName["Console keys"]
	if keys.OK || keys.Fatal {
		t.Fatalf("absent keys should be a non-fatal warning: %+v", keys)
	}
}

func TestFatalFailures(t *testing.T) {
	results := []Result{
		{Name: "a", OK: true, Fatal: true},
		{Name: "b", OK: false, Fatal: false},
		{Name: "c", OK: false, Fatal: true},
	}
	failed := FatalFailures(results)
	if len(failed) != 1 || failed[0].Name != "c" {
		t.Fatalf("unexpected fatal failures: %+v", failed)
	}
}
