package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"depot/internal/sqlutil"
)

// rawTitle mirrors one value of the titledb per-locale JSON map. Numeric
// fields arrive as JSON numbers or null; null decodes to the zero value.
type rawTitle struct {
	ID              string   `json:"id"`
	IDs             []string `json:"ids"`
	NsuID           int64    `json:"nsuId"`
	Name            string   `json:"name"`
	Version         int64    `json:"version"`
	Region          string   `json:"region"`
	ReleaseDate     int64    `json:"releaseDate"`
	Publisher       string   `json:"publisher"`
	Developer       string   `json:"developer"`
	Intro           string   `json:"intro"`
	Description     string   `json:"description"`
	BannerURL       string   `json:"bannerUrl"`
	IconURL         string   `json:"iconUrl"`
	FrontBoxArt     string   `json:"frontBoxArt"`
	Screenshots     []string `json:"screenshots"`
	Category        []string `json:"category"`
	Languages       []string `json:"languages"`
	Rating          int64    `json:"rating"`
	RatingContent   []string `json:"ratingContent"`
	NumberOfPlayers int64    `json:"numberOfPlayers"`
	IsDemo          bool     `json:"isDemo"`
	Key             string   `json:"key"`
	RightsID        string   `json:"rightsId"`
	Size            int64    `json:"size"`
}

const upsertTitleSQL = `INSERT INTO titles (
        locale, title_id, alt_ids_json, nsu_id, name, version, region, release_date,
        publisher, developer, intro, description, banner_url, icon_url, front_box_art,
        screenshots_json, categories_json, languages_json, rating, rating_content_json,
        number_of_players, is_demo, content_key, rights_id, size
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(locale, title_id) DO UPDATE SET
        alt_ids_json = excluded.alt_ids_json,
        nsu_id = excluded.nsu_id,
        name = excluded.name,
        version = excluded.version,
        region = excluded.region,
        release_date = excluded.release_date,
        publisher = excluded.publisher,
        developer = excluded.developer,
        intro = excluded.intro,
        description = excluded.description,
        banner_url = excluded.banner_url,
        icon_url = excluded.icon_url,
        front_box_art = excluded.front_box_art,
        screenshots_json = excluded.screenshots_json,
        categories_json = excluded.categories_json,
        languages_json = excluded.languages_json,
        rating = excluded.rating,
        rating_content_json = excluded.rating_content_json,
        number_of_players = excluded.number_of_players,
        is_demo = excluded.is_demo,
        content_key = excluded.content_key,
        rights_id = excluded.rights_id,
        size = excluded.size
    RETURNING id`

// ImportLocale streams a titledb locale file and atomically replaces that
// locale's rows. Entries without a usable title ID are counted as skipped.
// A well-formed file yielding zero entries is rejected so a bad mirror
// response cannot wipe a previously imported locale.
func (s *Store) ImportLocale(ctx context.Context, locale, sourceURL string, r io.Reader) (ImportStats, error) {
	ctx = sqlutil.EnsureContext(ctx)
	var stats ImportStats

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return stats, fmt.Errorf("read titledb document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return stats, fmt.Errorf("unexpected titledb document shape: %v", tok)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM titles WHERE locale = ?`, locale); err != nil {
		return stats, fmt.Errorf("clear locale %s: %w", locale, err)
	}

	upsert, err := tx.PrepareContext(ctx, upsertTitleSQL)
	if err != nil {
		return stats, fmt.Errorf("prepare title upsert: %w", err)
	}
	defer upsert.Close()

	clearAlts, err := tx.PrepareContext(ctx, `DELETE FROM title_alt_ids WHERE title_row_id = ?`)
	if err != nil {
		return stats, fmt.Errorf("prepare alt id clear: %w", err)
	}
	defer clearAlts.Close()

	insertAlt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO title_alt_ids (title_row_id, locale, alt_id) VALUES (?, ?, ?)`)
	if err != nil {
		return stats, fmt.Errorf("prepare alt id insert: %w", err)
	}
	defer insertAlt.Close()

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := dec.Token(); err != nil {
			return stats, fmt.Errorf("read titledb key: %w", err)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return stats, fmt.Errorf("read titledb value: %w", err)
		}

		var entry rawTitle
		if err := json.Unmarshal(raw, &entry); err != nil {
			stats.Skipped++
			continue
		}
		title, ok := normalizeEntry(locale, entry)
		if !ok {
			stats.Skipped++
			continue
		}

		var rowID int64
		if err := upsert.QueryRowContext(ctx,
			title.Locale,
			title.TitleID,
			encodeStringList(title.AltIDs),
			sqlutil.NullableInt64(title.NsuID),
			sqlutil.NullableString(title.Name),
			title.Version,
			sqlutil.NullableString(title.Region),
			sqlutil.NullableInt64(title.ReleaseDate),
			sqlutil.NullableString(title.Publisher),
			sqlutil.NullableString(title.Developer),
			sqlutil.NullableString(title.Intro),
			sqlutil.NullableString(title.Description),
			sqlutil.NullableString(title.BannerURL),
			sqlutil.NullableString(title.IconURL),
			sqlutil.NullableString(title.FrontBoxArt),
			encodeStringList(title.Screenshots),
			encodeStringList(title.Categories),
			encodeStringList(title.Languages),
			title.Rating,
			encodeStringList(title.RatingContent),
			title.NumberOfPlayers,
			sqlutil.BoolToInt(title.IsDemo),
			sqlutil.NullableString(title.ContentKey),
			sqlutil.NullableString(title.RightsID),
			title.Size,
		).Scan(&rowID); err != nil {
			return stats, fmt.Errorf("upsert title %s: %w", title.TitleID, err)
		}

		if _, err := clearAlts.ExecContext(ctx, rowID); err != nil {
			return stats, fmt.Errorf("clear alt ids for %s: %w", title.TitleID, err)
		}
		for _, alt := range title.AltIDs {
			if _, err := insertAlt.ExecContext(ctx, rowID, locale, alt); err != nil {
				return stats, fmt.Errorf("insert alt id %s for %s: %w", alt, title.TitleID, err)
			}
		}
		stats.Imported++
	}

	if _, err := dec.Token(); err != nil {
		return stats, fmt.Errorf("read titledb document end: %w", err)
	}
	if stats.Imported == 0 {
		return stats, errors.New("titledb document contained no usable entries")
	}

	now := sqlutil.FormatTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_imports (locale, imported_at, entries, skipped, source_url)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(locale) DO UPDATE SET
             imported_at = excluded.imported_at,
             entries = excluded.entries,
             skipped = excluded.skipped,
             source_url = excluded.source_url`,
		locale, now, stats.Imported, stats.Skipped, sqlutil.NullableString(sourceURL),
	); err != nil {
		return stats, fmt.Errorf("record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}
	return stats, nil
}

func normalizeEntry(locale string, entry rawTitle) (Title, bool) {
	id := strings.ToUpper(strings.TrimSpace(entry.ID))
	if !isTitleID(id) {
		return Title{}, false
	}

	title := Title{
		Locale:          locale,
		TitleID:         id,
		NsuID:           entry.NsuID,
		Name:            strings.TrimSpace(entry.Name),
		Version:         entry.Version,
		Region:          strings.TrimSpace(entry.Region),
		ReleaseDate:     entry.ReleaseDate,
		Publisher:       strings.TrimSpace(entry.Publisher),
		Developer:       strings.TrimSpace(entry.Developer),
		Intro:           entry.Intro,
		Description:     entry.Description,
		BannerURL:       entry.BannerURL,
		IconURL:         entry.IconURL,
		FrontBoxArt:     entry.FrontBoxArt,
		Screenshots:     entry.Screenshots,
		Categories:      entry.Category,
		Languages:       entry.Languages,
		Rating:          entry.Rating,
		RatingContent:   entry.RatingContent,
		NumberOfPlayers: entry.NumberOfPlayers,
		IsDemo:          entry.IsDemo,
		ContentKey:      strings.TrimSpace(entry.Key),
		RightsID:        strings.TrimSpace(entry.RightsID),
		Size:            entry.Size,
	}

	seen := map[string]struct{}{id: {}}
	for _, candidate := range entry.IDs {
		alt := strings.ToUpper(strings.TrimSpace(candidate))
		if !isTitleID(alt) {
			continue
		}
		if _, dup := seen[alt]; dup {
			continue
		}
		seen[alt] = struct{}{}
		title.AltIDs = append(title.AltIDs, alt)
	}
	return title, true
}

func isTitleID(value string) bool {
	if len(value) != 16 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func encodeStringList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}
