// Package catalog persists titledb metadata in SQLite and keeps it fresh.
//
// The Store holds one row per (locale, title id) pair plus an FTS5 index
// used for ranked name search. Imports stream the large per-locale JSON
// files from the titledb mirror and atomically replace that locale's rows,
// so lookups keep serving the previous snapshot until the new one commits.
//
// The Refresher maps configured locales such as "en-US" to titledb file
// names ("US.en.json"), downloads them, and feeds them to the Store. The
// database is a rebuildable cache: schema changes bump schemaVersion and
// users delete catalog.db to adopt them.
package catalog
