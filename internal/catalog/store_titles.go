package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"depot/internal/sqlutil"
)

const titleColumns = "id, locale, title_id, alt_ids_json, nsu_id, name, version, region, release_date, publisher, developer, intro, description, banner_url, icon_url, front_box_art, screenshots_json, categories_json, languages_json, rating, rating_content_json, number_of_players, is_demo, content_key, rights_id, size"

func scanTitle(scanner interface{ Scan(dest ...any) error }, extras ...any) (*Title, error) {
	var (
		rowID         int64
		locale        string
		titleID       string
		altIDs        sql.NullString
		nsuID         sql.NullInt64
		name          sql.NullString
		version       sql.NullInt64
		region        sql.NullString
		releaseDate   sql.NullInt64
		publisher     sql.NullString
		developer     sql.NullString
		intro         sql.NullString
		description   sql.NullString
		bannerURL     sql.NullString
		iconURL       sql.NullString
		frontBoxArt   sql.NullString
		screenshots   sql.NullString
		categories    sql.NullString
		languages     sql.NullString
		rating        sql.NullInt64
		ratingContent sql.NullString
		players       sql.NullInt64
		isDemo        sql.NullInt64
		contentKey    sql.NullString
		rightsID      sql.NullString
		size          sql.NullInt64
	)

	dests := []any{
		&rowID, &locale, &titleID, &altIDs, &nsuID, &name, &version, &region,
		&releaseDate, &publisher, &developer, &intro, &description, &bannerURL,
		&iconURL, &frontBoxArt, &screenshots, &categories, &languages, &rating,
		&ratingContent, &players, &isDemo, &contentKey, &rightsID, &size,
	}
	dests = append(dests, extras...)
	if err := scanner.Scan(dests...); err != nil {
		return nil, err
	}

	title := &Title{
		RowID:           rowID,
		Locale:          locale,
		TitleID:         titleID,
		AltIDs:          decodeStringList(altIDs),
		NsuID:           nsuID.Int64,
		Name:            name.String,
		Version:         version.Int64,
		Region:          region.String,
		ReleaseDate:     releaseDate.Int64,
		Publisher:       publisher.String,
		Developer:       developer.String,
		Intro:           intro.String,
		Description:     description.String,
		BannerURL:       bannerURL.String,
		IconURL:         iconURL.String,
		FrontBoxArt:     frontBoxArt.String,
		Screenshots:     decodeStringList(screenshots),
		Categories:      decodeStringList(categories),
		Languages:       decodeStringList(languages),
		Rating:          rating.Int64,
		RatingContent:   decodeStringList(ratingContent),
		NumberOfPlayers: players.Int64,
		IsDemo:          isDemo.Int64 != 0,
		ContentKey:      contentKey.String,
		RightsID:        rightsID.String,
		Size:            size.Int64,
	}
	return title, nil
}

func decodeStringList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil
	}
	return values
}

// GetByTitleID fetches the title with the exact ID for a locale, or nil
// when the catalog has no entry.
func (s *Store) GetByTitleID(ctx context.Context, locale, titleID string) (*Title, error) {
	id := strings.ToUpper(strings.TrimSpace(titleID))
	row := s.db.QueryRowContext(ctx,
		`SELECT `+titleColumns+` FROM titles WHERE locale = ? AND title_id = ? LIMIT 1`,
		locale, id,
	)
	title, err := scanTitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get title by id: %w", err)
	}
	return title, nil
}

// GetByAlternateID fetches the title whose alternate ID list contains the
// given ID, or nil when no entry matches.
func (s *Store) GetByAlternateID(ctx context.Context, locale, titleID string) (*Title, error) {
	id := strings.ToUpper(strings.TrimSpace(titleID))
	row := s.db.QueryRowContext(ctx,
		`SELECT `+titleColumns+` FROM titles
         WHERE id = (SELECT title_row_id FROM title_alt_ids WHERE locale = ? AND alt_id = ? LIMIT 1)`,
		locale, id,
	)
	title, err := scanTitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get title by alternate id: %w", err)
	}
	return title, nil
}

// GetByCatalogID fetches the title carrying the numeric catalog ID, or
// nil when no entry matches.
func (s *Store) GetByCatalogID(ctx context.Context, locale string, catalogID int64) (*Title, error) {
	if catalogID <= 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+titleColumns+` FROM titles WHERE locale = ? AND nsu_id = ? LIMIT 1`,
		locale, catalogID,
	)
	title, err := scanTitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get title by catalog id: %w", err)
	}
	return title, nil
}

// Search runs a ranked full-text query over names, publishers, and
// descriptions for one locale. Results arrive best match first.
func (s *Store) Search(ctx context.Context, locale, query string, limit int) ([]SearchHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixedTitleColumns("t")+`, bm25(titles_fts) AS rank
         FROM titles_fts
         JOIN titles t ON t.id = titles_fts.rowid
         WHERE titles_fts MATCH ? AND t.locale = ?
         ORDER BY rank
         LIMIT ?`,
		match, locale, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var rank float64
		title, err := scanTitle(rows, &rank)
		if err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{Title: *title, Rank: rank})
	}
	return hits, rows.Err()
}

// buildMatchQuery turns free-form user input into an FTS5 query: each
// token is quoted (so operators lose their meaning) and prefix-matched.
func buildMatchQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		escaped := strings.ReplaceAll(field, `"`, `""`)
		terms = append(terms, `"`+escaped+`"*`)
	}
	return strings.Join(terms, " ")
}

func prefixedTitleColumns(alias string) string {
	parts := strings.Split(titleColumns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

// CountByLocale returns how many titles each locale holds.
func (s *Store) CountByLocale(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT locale, COUNT(1) FROM titles GROUP BY locale`)
	if err != nil {
		return nil, fmt.Errorf("count titles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var locale string
		var count int
		if err := rows.Scan(&locale, &count); err != nil {
			return nil, err
		}
		counts[locale] = count
	}
	return counts, rows.Err()
}

// Locales lists the locales present in the catalog.
func (s *Store) Locales(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT locale FROM titles ORDER BY locale`)
	if err != nil {
		return nil, fmt.Errorf("list locales: %w", err)
	}
	defer rows.Close()

	var locales []string
	for rows.Next() {
		var locale string
		if err := rows.Scan(&locale); err != nil {
			return nil, err
		}
		locales = append(locales, locale)
	}
	return locales, rows.Err()
}

// ImportRecords reports the last import per locale, most recent first.
func (s *Store) ImportRecords(ctx context.Context) ([]ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT locale, imported_at, entries, skipped, source_url
         FROM catalog_imports ORDER BY imported_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var records []ImportRecord
	for rows.Next() {
		var (
			record      ImportRecord
			importedRaw string
			sourceURL   sql.NullString
		)
		if err := rows.Scan(&record.Locale, &importedRaw, &record.Entries, &record.Skipped, &sourceURL); err != nil {
			return nil, err
		}
		record.SourceURL = sourceURL.String
		if imported, err := sqlutil.ParseTime(importedRaw); err == nil {
			record.ImportedAt = imported
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
