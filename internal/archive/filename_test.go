package archive_test

import (
	"testing"

	"depot/internal/archive"
)

func TestParseFilename(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     archive.ParsedName
	}{
		{
			name:     "full form",
			filename: "Some Game [0100ABCD00000000][v65536].nsp",
			want: archive.ParsedName{
				Stem:    "Some Game",
				TitleID: "0100ABCD00000000",
				Version: 65536,
			},
		},
		{
			name:     "lowercase id is uppercased",
			filename: "game [0100abcd00000000][v0].nsz",
			want: archive.ParsedName{
				Stem:    "game",
				TitleID: "0100ABCD00000000",
			},
		},
		{
			name:     "extra tag preserved",
			filename: "Game [0100ABCD00000000][v3][US].xci",
			want: archive.ParsedName{
				Stem:    "Game",
				TitleID: "0100ABCD00000000",
				Version: 3,
				Tags:    []string{"US"},
			},
		},
		{
			name:     "no tags",
			filename: "plain-name.nsp",
			want: archive.ParsedName{
				Stem: "plain-name",
			},
		},
		{
			name:     "sixteen chars but not hex",
			filename: "Game [NOTAHEXIDENTIFRS].nsp",
			want: archive.ParsedName{
				Stem: "Game",
				Tags: []string{"NOTAHEXIDENTIFRS"},
			},
		},
		{
			name:     "version without digits stays a tag",
			filename: "Game [vFinal].nsp",
			want: archive.ParsedName{
				Stem: "Game",
				Tags: []string{"vFinal"},
			},
		},
		{
			name:     "only tags keeps raw stem",
			filename: "[0100ABCD00000000].nsp",
			want: archive.ParsedName{
				Stem:    "[0100ABCD00000000]",
				TitleID: "0100ABCD00000000",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := archive.ParseFilename(tc.filename)
			if got.Stem != tc.want.Stem {
				t.Fatalf("stem: got %q want %q", got.Stem, tc.want.Stem)
			}
			if got.TitleID != tc.want.TitleID {
				t.Fatalf("title id: got %q want %q", got.TitleID, tc.want.TitleID)
			}
			if got.Version != tc.want.Version {
				t.Fatalf("version: got %d want %d", got.Version, tc.want.Version)
			}
			if len(got.Tags) != len(tc.want.Tags) {
				t.Fatalf("tags: got %v want %v", got.Tags, tc.want.Tags)
			}
			for i := range got.Tags {
				if got.Tags[i] != tc.want.Tags[i] {
					t.Fatalf("tags: got %v want %v", got.Tags, tc.want.Tags)
				}
			}
		})
	}
}
