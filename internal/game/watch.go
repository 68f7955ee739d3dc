package game

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/xtding233/gacha-ledger/internal/logger"
)

// Watcher invalidates a Loader whenever a rule file under its directory changes.
// It watches the rules directory plus every <type> and <type>/pools subdirectory,
// and picks up directories created later.
type Watcher struct {
	loader   *Loader
	fsw      *fsnotify.Watcher
	log      *logger.Logger
	onChange func(string) // called with path that changed, after invalidation
}

// NewWatcher registers the rules tree with fsnotify. onChange may be nil.
func NewWatcher(l *Loader, log *logger.Logger, onChange func(string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{loader: l, fsw: fsw, log: log, onChange: onChange}
	if err := w.addTree(l.Dir()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("rules watcher error")
		}
	}
}

// Close terminates the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", ev.Name).Msg("watch new rules dir")
			}
			return
		}
	}
	if !strings.HasSuffix(ev.Name, ".yaml") {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.loader.Invalidate()
	w.log.Info().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("rules reloaded")
	if w.onChange != nil {
		w.onChange(ev.Name)
	}
}

// addTree watches root and its subdirectories down to <type>/pools.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
