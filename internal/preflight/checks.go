package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"depot/internal/catalog"
)

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, OK: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckKeysFile reports whether console key material is available.
// Identification works without it; titles come from file names and
// archive entry names only.
func CheckKeysFile(path string) Result {
	const name = "Console keys"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "keys_file not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not found)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	return Result{Name: name, OK: true, Detail: path}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// floor bytes available.
func CheckFreeSpace(path string, floor uint64) Result {
	const name = "Staging free space"
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	if free < floor {
		return Result{Name: name, Detail: fmt.Sprintf("%s free (below %s floor)", humanize.IBytes(free), humanize.IBytes(floor))}
	}
	return Result{Name: name, OK: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}

// CheckCatalog verifies that the primary locale has imported titles.
func CheckCatalog(ctx context.Context, store *catalog.Store, locale string) Result {
	const name = "Catalog"
	counts, err := store.CountByLocale(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("count titles: %v", err)}
	}
	if counts[locale] == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("no titles for %s (run depot catalog refresh)", locale)}
	}
	return Result{Name: name, OK: true, Detail: fmt.Sprintf("%d titles for %s", counts[locale], locale)}
}
