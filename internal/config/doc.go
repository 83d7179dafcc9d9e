// Package config loads, normalizes, and validates depot configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DEPOT_ROM_DIR. The Config type centralizes every knob the daemon and CLI
// need, allowing rom/data directories, catalog locales, and download tuning
// to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical locales, and clear validation errors.
package config
