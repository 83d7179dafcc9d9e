// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal library, catalog, and download models into
// transport-friendly DTOs that the CLI and other consumers can render
// without coupling to internal types.
//
// # Key Types
//
// DownloadItem: transport representation of a queue entry with progress,
// provenance, and timestamps.
//
// LibraryEntry: one indexed file with its resolved catalog metadata.
//
// TitleDetail: catalog metadata for a title ID plus the local files that
// carry it.
//
// StatusReport: daemon running state, library and queue stats, catalog
// locales, upstream sources, and startup checks.
//
// # Converters
//
// FromDownloadItem: downloads.Item -> DownloadItem with percent derivation
// and RFC3339 timestamps.
//
// FromResolvedFile: resolve.ResolvedFile -> LibraryEntry, catalog name
// winning over the filename-derived one.
//
// FromLibraryHits/FromCatalogHits: search results for both scopes in a
// single SearchResult shape.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Internal enums (downloads.Status, resolve.MatchKind, archive.Kind) are
// exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
//
// The services in this package (DownloadService, LibraryService,
// CatalogService) are thin facades the daemon handlers and CLI workflows
// share: they run the underlying operation and convert the result, so both
// sides agree on the wire shape.
package api
