// Package library indexes the packages found in the rom directory.
//
// The Store keeps one row per file with the identity the archive inspector
// derived for it. Row IDs are stable across rescans so shop download URLs
// keep working while files stay in place. The Scanner walks the rom
// directory with a bounded worker pool, skips files whose size and mtime
// are unchanged, and sweeps rows whose files disappeared. The Watcher
// reacts to filesystem events so new drops show up without a full rescan.
package library
