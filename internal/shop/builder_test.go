package shop_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"depot/internal/archive"
	"depot/internal/config"
	"depot/internal/library"
	"depot/internal/resolve"
	"depot/internal/shop"
	"depot/internal/testsupport"
)

const builderCatalog = `{
  "1": {
    "id": "0100ABCD00000000",
    "ids": ["0100ABCD00000000", "0100ABCD000000AA"],
    "name": "Sample Quest",
    "publisher": "Example"
  },
  "2": {
    "id": "0100CCCC00000000",
    "name": "Alpha Station",
    "publisher": "Example"
  }
}`

type builderFixture struct {
	cfg     *config.Config
	library *library.Store
	builder func(foreign func() []shop.FileEntry) *shop.Builder
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	libraryStore := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	if _, err := catalogStore.ImportLocale(ctx, "en-US", "", strings.NewReader(builderCatalog)); err != nil {
		t.Fatalf("import catalog: %v", err)
	}

	resolver := resolve.NewResolver(catalogStore, libraryStore, cfg)
	return &builderFixture{
		cfg:     cfg,
		library: libraryStore,
		builder: func(foreign func() []shop.FileEntry) *shop.Builder {
			return shop.NewBuilder(libraryStore, resolver, foreign, nil)
		},
	}
}

func (f *builderFixture) addFile(t *testing.T, name, titleID string, size int64) *library.File {
	t.Helper()
	file, err := f.library.Upsert(context.Background(), &library.File{
		Path:        filepath.Join(f.cfg.Paths.RomDir, name),
		Size:        size,
		TitleID:     titleID,
		DisplayName: strings.TrimSuffix(name, filepath.Ext(name)),
		Kind:        archive.KindBase,
		Extension:   strings.ToLower(filepath.Ext(name)),
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", name, err)
	}
	return file
}

func TestBuildResolvesLocalEntries(t *testing.T) {
	f := newBuilderFixture(t)
	file := f.addFile(t, "sample.nsp", "0100ABCD00000000", 2048)

	index, err := f.builder(nil).Build(context.Background(), "http://shop.example:8465")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(index.Files) != 1 {
		t.Fatalf("expected one entry, got %d", len(index.Files))
	}

	entry := index.Files[0]
	want := "Sample Quest [0100ABCD00000000][v0].nsp"
	if got := entry.DisplayName(); got != want {
		t.Fatalf("display name: got %q, want %q", got, want)
	}
	if !strings.HasPrefix(entry.URL, "http://shop.example:8465/files/") {
		t.Fatalf("unexpected url %q", entry.URL)
	}
	if !strings.Contains(entry.URL, "/files/"+strconv.FormatInt(file.ID, 10)) {
		t.Fatalf("url %q does not point at row %d", entry.URL, file.ID)
	}
	if entry.Size != 2048 {
		t.Fatalf("unexpected size %d", entry.Size)
	}
	if !strings.Contains(index.Success, "1 local") {
		t.Fatalf("unexpected success message %q", index.Success)
	}
}

func TestBuildKeepsUnidentifiedFiles(t *testing.T) {
	f := newBuilderFixture(t)
	f.addFile(t, "Homebrew Tool.nsp", "", 512)

	index, err := f.builder(nil).Build(context.Background(), "http://shop.example:8465")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(index.Files) != 1 {
		t.Fatalf("expected one entry, got %d", len(index.Files))
	}
	if got := index.Files[0].DisplayName(); got != "Homebrew Tool.nsp" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestBuildLocalEntriesWinOverUpstream(t *testing.T) {
	f := newBuilderFixture(t)
	f.addFile(t, "sample.nsp", "0100ABCD00000000", 2048)

	foreign := func() []shop.FileEntry {
		return []shop.FileEntry{
			// Same title from an upstream mirror under a different name.
			{URL: "https://mirror.example/files/7#Sample Quest Deluxe [0100ABCD00000000][v0].nsp", Size: 4096},
			// Alternate ID of the local file.
			{URL: "https://mirror.example/files/8#Sample Quest Alt [0100ABCD000000AA][v0].nsp", Size: 4096},
			// Genuinely new title.
			{URL: "https://mirror.example/files/9#Space Ranger [0100BBBB00000000][v0].nsp", Size: 1024},
		}
	}

	index, err := f.builder(foreign).Build(context.Background(), "http://shop.example:8465")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(index.Files) != 2 {
		t.Fatalf("expected two entries, got %d: %+v", len(index.Files), index.Files)
	}
	if got := index.Files[0].DisplayName(); got != "Sample Quest [0100ABCD00000000][v0].nsp" {
		t.Fatalf("local entry should come first, got %q", got)
	}
	if got := index.Files[1].DisplayName(); got != "Space Ranger [0100BBBB00000000][v0].nsp" {
		t.Fatalf("expected upstream-only title, got %q", got)
	}
	if !strings.Contains(index.Success, "1 local") || !strings.Contains(index.Success, "1 upstream") {
		t.Fatalf("unexpected success message %q", index.Success)
	}
}

func TestBuildDeduplicatesUpstreamEntries(t *testing.T) {
	f := newBuilderFixture(t)

	foreign := func() []shop.FileEntry {
		return []shop.FileEntry{
			{URL: "https://one.example/files/1#Space Ranger [0100BBBB00000000][v0].nsp", Size: 100},
			// Second source publishes the same title; first source wins.
			{URL: "https://two.example/files/5#Space Ranger Mirror [0100BBBB00000000][v0].nsp", Size: 100},
			// Exact URL repeated across sources.
			{URL: "https://one.example/files/1#Space Ranger [0100BBBB00000000][v0].nsp", Size: 100},
			// No recoverable ID: kept, deduplicated by URL only.
			{URL: "https://one.example/files/2#Homebrew Tool.nsp", Size: 50},
			{URL: "https://two.example/files/6#Homebrew Tool.nsp", Size: 50},
		}
	}

	index, err := f.builder(foreign).Build(context.Background(), "http://shop.example:8465")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(index.Files) != 3 {
		t.Fatalf("expected three entries, got %d: %+v", len(index.Files), index.Files)
	}
	var urls []string
	for _, entry := range index.Files {
		urls = append(urls, entry.URL)
	}
	for _, url := range urls {
		if strings.Contains(url, "two.example/files/5") {
			t.Fatalf("losing duplicate survived: %v", urls)
		}
	}
}

func TestBuildOrderIsDeterministic(t *testing.T) {
	f := newBuilderFixture(t)
	f.addFile(t, "zeta.nsp", "0100ABCD00000000", 10)
	f.addFile(t, "alpha.nsp", "0100CCCC00000000", 20)

	foreign := func() []shop.FileEntry {
		return []shop.FileEntry{
			{URL: "https://mirror.example/files/2#Beta Blast [0100EEEE00000000][v0].nsp", Size: 1},
			{URL: "https://mirror.example/files/1#Aster [0100DDDD00000000][v0].nsp", Size: 1},
		}
	}

	build := func() *shop.Index {
		index, err := f.builder(foreign).Build(context.Background(), "http://shop.example:8465")
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		return index
	}

	first := build()
	second := build()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("builds diverged:\n%+v\n%+v", first, second)
	}

	var names []string
	for _, entry := range first.Files {
		names = append(names, entry.DisplayName())
	}
	want := []string{
		"Alpha Station [0100CCCC00000000][v0].nsp",
		"Sample Quest [0100ABCD00000000][v0].nsp",
		"Aster [0100DDDD00000000][v0].nsp",
		"Beta Blast [0100EEEE00000000][v0].nsp",
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected order:\n got %v\nwant %v", names, want)
	}
}

func TestBuildEmptyIndexSerializesArrays(t *testing.T) {
	f := newBuilderFixture(t)

	index, err := f.builder(nil).Build(context.Background(), "http://shop.example:8465")
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	data, err := json.Marshal(index)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Console clients reject null where they expect a list.
	if !strings.Contains(string(data), `"files":[]`) {
		t.Fatalf("files should serialize as an empty array: %s", data)
	}
	if !strings.Contains(string(data), `"directories":[]`) {
		t.Fatalf("directories should serialize as an empty array: %s", data)
	}
}
