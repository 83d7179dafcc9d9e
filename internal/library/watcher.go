package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"depot/internal/archive"
	"depot/internal/config"
	"depot/internal/logging"
)

// debounceDelay is how long a path must stay quiet before the watcher
// indexes it. Large packages arrive over many write events; indexing too
// early reads a half-copied file.
const debounceDelay = 2 * time.Second

// Watcher indexes files as they appear in the rom directory. It watches
// subdirectories recursively and debounces write bursts. Files copied
// into a directory before its watch is registered are picked up by the
// next full scan.
type Watcher struct {
	store      *Store
	inspector  *archive.Inspector
	romDir     string
	extensions map[string]struct{}
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timers  map[string]*time.Timer
}

// NewWatcher builds a Watcher from configuration. A nil inspector gets
// the default one.
func NewWatcher(store *Store, cfg *config.Config, inspector *archive.Inspector, logger *slog.Logger) *Watcher {
	extensions := make(map[string]struct{}, len(cfg.Scanner.Extensions))
	for _, ext := range cfg.Scanner.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}
	if inspector == nil {
		inspector = archive.NewInspector()
	}
	return &Watcher{
		store:      store,
		inspector:  inspector,
		romDir:     cfg.Paths.RomDir,
		extensions: extensions,
		logger:     logging.NewComponentLogger(logger, "watcher"),
	}
}

// Start begins watching the rom directory tree.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := addRecursive(fsw, w.romDir); err != nil {
		_ = fsw.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch rom directory: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.timers = make(map[string]*time.Timer)
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(runCtx, fsw)

	w.logger.Info("watching rom directory", logging.String("path", w.romDir))
	return nil
}

// Stop terminates watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := addRecursive(fsw, path); err != nil {
				w.logger.Warn("cannot watch new directory",
					logging.String("path", path),
					logging.Error(err))
			}
			return
		}
	}

	if _, ok := w.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.cancelPending(path)
		removed, err := w.store.RemoveByPath(ctx, path)
		if err != nil {
			w.logger.Warn("cannot remove library row",
				logging.String("path", path),
				logging.Error(err))
			return
		}
		if removed {
			w.logger.Info("file removed from library", logging.String("path", path))
		}
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.scheduleIndex(ctx, path)
	}
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) scheduleIndex(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.indexFile(ctx, path)
	})
}

func (w *Watcher) indexFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("cannot stat dropped file",
				logging.String("path", path),
				logging.Error(err))
		}
		return
	}
	if info.IsDir() {
		return
	}

	parsed, err := w.inspector.Inspect(ctx, path)
	if err != nil {
		w.logger.Warn("dropped file not indexed",
			logging.String("path", path),
			logging.Error(err))
		return
	}

	file := &File{
		Path:        path,
		Size:        parsed.Size,
		ModTime:     info.ModTime().UTC(),
		TitleID:     parsed.TitleID,
		AltIDs:      parsed.AltIDs,
		DisplayName: parsed.DisplayName,
		Version:     parsed.Version,
		Kind:        parsed.Kind,
		Extension:   strings.ToLower(filepath.Ext(path)),
	}
	if _, err := w.store.Upsert(ctx, file); err != nil {
		w.logger.Warn("cannot index dropped file",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	w.logger.Info("file indexed",
		logging.String("path", path),
		logging.String("title_id", file.TitleID))
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
