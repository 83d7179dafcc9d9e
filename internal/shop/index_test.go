package shop_test

import (
	"strings"
	"testing"

	"depot/internal/shop"
)

func TestFormatEntryName(t *testing.T) {
	cases := []struct {
		name    string
		display string
		titleID string
		version int
		ext     string
		want    string
	}{
		{
			name:    "identified base",
			display: "Sample Quest",
			titleID: "0100ABCD00000000",
			version: 0,
			ext:     ".nsp",
			want:    "Sample Quest [0100ABCD00000000][v0].nsp",
		},
		{
			name:    "lowercase id uppercased",
			display: "Sample Quest",
			titleID: "0100abcd00000800",
			version: 65536,
			ext:     ".xci",
			want:    "Sample Quest [0100ABCD00000800][v65536].xci",
		},
		{
			name:    "unidentified keeps plain name",
			display: "Homebrew Tool",
			titleID: "",
			version: 0,
			ext:     ".nsp",
			want:    "Homebrew Tool.nsp",
		},
		{
			name:    "blank name gets placeholder",
			display: "   ",
			titleID: "0100ABCD00000000",
			version: 0,
			ext:     ".nsp",
			want:    "Unknown Title [0100ABCD00000000][v0].nsp",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shop.FormatEntryName(tc.display, tc.titleID, tc.version, tc.ext)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEntryURLRoundTripsDisplayName(t *testing.T) {
	name := "Sample Quest [0100ABCD00000000][v0].nsp"
	rawURL, err := shop.EntryURL("http://shop.example:8465/", 42, name)
	if err != nil {
		t.Fatalf("EntryURL returned error: %v", err)
	}
	if !strings.HasPrefix(rawURL, "http://shop.example:8465/files/42#") {
		t.Fatalf("unexpected url %q", rawURL)
	}

	entry := shop.FileEntry{URL: rawURL, Size: 2048}
	if got := entry.DisplayName(); got != name {
		t.Fatalf("display name round trip: got %q, want %q", got, name)
	}
	if got := entry.TitleID(); got != "0100ABCD00000000" {
		t.Fatalf("title id: got %q", got)
	}
}

func TestDisplayNameFallsBackToPathSegment(t *testing.T) {
	entry := shop.FileEntry{URL: "https://mirror.example/games/Space%20Ranger%20%5B0100BBBB00000000%5D%5Bv0%5D.nsp"}
	if got := entry.DisplayName(); got != "Space Ranger [0100BBBB00000000][v0].nsp" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := entry.TitleID(); got != "0100BBBB00000000" {
		t.Fatalf("unexpected title id %q", got)
	}
}

func TestTitleIDEmptyWhenNameHasNoBrackets(t *testing.T) {
	entry := shop.FileEntry{URL: "https://mirror.example/files/9#Homebrew Tool.nsp"}
	if got := entry.TitleID(); got != "" {
		t.Fatalf("expected empty title id, got %q", got)
	}
}
