package preflight

import (
	"context"

	"depot/internal/catalog"
	"depot/internal/config"
)

// Result reports the outcome of a single preflight check. Fatal marks
// checks whose failure should abort daemon startup.
type Result struct {
	Name   string
	OK     bool
	Detail string
	Fatal  bool
}

// freeSpaceFloor is the staging filesystem headroom below which the
// free-space check warns.
const freeSpaceFloor = 512 << 20

// RunAll executes every applicable check for the given config. The
// catalog store is optional; without it the catalog check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, store *catalog.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	rom := CheckDirectoryAccess("ROM directory", cfg.Paths.RomDir)
	rom.Fatal = true
	results = append(results, rom)

	staging := CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir)
	staging.Fatal = true
	results = append(results, staging)

	results = append(results, CheckKeysFile(cfg.Paths.KeysFile))
	results = append(results, CheckFreeSpace(cfg.Paths.StagingDir, freeSpaceFloor))

	if store != nil {
		results = append(results, CheckCatalog(ctx, store, cfg.Catalog.PrimaryLocale))
	}

	return results
}

// FatalFailures filters results down to the ones that should stop the
// daemon from starting.
func FatalFailures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if result.Fatal && !result.OK {
			failed = append(failed, result)
		}
	}
	return failed
}
