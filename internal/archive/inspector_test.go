package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"depot/internal/archive"
	"depot/internal/errs"
	"depot/internal/testsupport"
)

func TestInspectPrefersTicketTitleID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Sample Quest [0100000000000000][v65536].nsp")
	testsupport.WritePFS0(t, path,
		"01007ef00011e8000000000000000000.tik",
		"01007ef00011e8000000000000000000.cert",
		"content.nca",
	)

	info, err := archive.NewInspector().Inspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.TitleID != "01007EF00011E800" {
		t.Fatalf("expected ticket title id to win, got %q", info.TitleID)
	}
	if len(info.AltIDs) != 0 {
		t.Fatalf("expected no alternate ids, got %v", info.AltIDs)
	}
	if info.DisplayName != "Sample Quest" {
		t.Fatalf("unexpected display name %q", info.DisplayName)
	}
	if info.Version != 65536 {
		t.Fatalf("expected version 65536, got %d", info.Version)
	}
	if info.Kind != archive.KindUpdate {
		t.Fatalf("expected update kind for suffix 800, got %q", info.Kind)
	}
	if info.Size <= 0 {
		t.Fatalf("expected positive size, got %d", info.Size)
	}
}

func TestInspectCollectsAlternateTicketIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.nsp")
	testsupport.WritePFS0(t, path,
		"0100aaaabbbb00000000000000000000.tik",
		"0100ccccdddd00000000000000000000.tik",
		"0100AAAABBBB00000000000000000000.tik",
	)

	info, err := archive.NewInspector().Inspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.TitleID != "0100AAAABBBB0000" {
		t.Fatalf("unexpected primary title id %q", info.TitleID)
	}
	if len(info.AltIDs) != 1 || info.AltIDs[0] != "0100CCCCDDDD0000" {
		t.Fatalf("expected single deduplicated alternate id, got %v", info.AltIDs)
	}
}

func TestInspectRejectsMalformedContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Broken Game [0100123412340000][v0].nsp")
	if err := os.WriteFile(path, []byte("definitely not an archive"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := archive.NewInspector().Inspect(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for malformed container")
	}
	if !errs.IsDecode(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestInspectUsesFilenameForCartImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Space Ranger [010093801237c000][v131072].xci")
	testsupport.WriteFile(t, path, 256)

	info, err := archive.NewInspector().Inspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.TitleID != "010093801237C000" {
		t.Fatalf("unexpected title id %q", info.TitleID)
	}
	if info.Kind != archive.KindBase {
		t.Fatalf("expected base kind for suffix 000, got %q", info.Kind)
	}
	if info.Version != 131072 {
		t.Fatalf("unexpected version %d", info.Version)
	}
	if info.DisplayName != "Space Ranger" {
		t.Fatalf("unexpected display name %q", info.DisplayName)
	}
}

func TestInspectClassifiesKinds(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     archive.Kind
	}{
		{name: "update suffix", filename: "A [0100123412340800][v65536].xci", want: archive.KindUpdate},
		{name: "base suffix", filename: "B [0100123412340000][v0].xci", want: archive.KindBase},
		{name: "addon suffix", filename: "C [0100123412341001][v0].xci", want: archive.KindDLC},
		{name: "no id at all", filename: "Homebrew Tool.xci", want: archive.KindBase},
	}

	dir := t.TempDir()
	insp := archive.NewInspector()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.filename)
			testsupport.WriteFile(t, path, 64)

			info, err := insp.Inspect(context.Background(), path)
			if err != nil {
				t.Fatalf("Inspect returned error: %v", err)
			}
			if info.Kind != tc.want {
				t.Fatalf("expected kind %q, got %q", tc.want, info.Kind)
			}
		})
	}
}

func TestInspectHonorsSuffixOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Custom [0100123412340900][v1].xci")
	testsupport.WriteFile(t, path, 64)

	insp := archive.NewInspector(archive.WithSuffixes("900", "100"))
	info, err := insp.Inspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.Kind != archive.KindUpdate {
		t.Fatalf("expected update kind with suffix override, got %q", info.Kind)
	}
}

func TestInspectStopsOnCanceledContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.nsp")
	testsupport.WritePFS0(t, path, "content.nca")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := archive.NewInspector().Inspect(ctx, path); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
