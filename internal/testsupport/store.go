package testsupport

import (
	"testing"

	"depot/internal/catalog"
	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/library"
)

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLibrary opens a library.Store for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenDownloads opens a downloads.Store for tests and registers cleanup.
func MustOpenDownloads(t testing.TB, cfg *config.Config) *downloads.Store {
	t.Helper()

	store, err := downloads.Open(cfg)
	if err != nil {
		t.Fatalf("downloads.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
