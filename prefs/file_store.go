package prefs

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codeloop/supervisor/core"
)

// FileStore is a JSON-file-backed Preferences implementation. The settings
// UI (an external collaborator, out of scope here) owns writes to the
// file; FileStore watches it with fsnotify and hot-reloads so a
// user-override Locator edited while the supervisor is running takes
// effect on the Locator Store's next resolution without a restart.
type FileStore struct {
	path   string
	logger core.Logger

	mu  sync.RWMutex
	doc *document

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore loads path (creating an empty document if it doesn't exist
// yet) and starts watching it for external writes.
func NewFileStore(path string, logger core.Logger) (*FileStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("supervisor/prefs")
	}

	fs := &FileStore{path: path, logger: logger, doc: newDocument()}
	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, &core.FrameworkError{Op: "prefs.NewFileStore", Kind: "config", Message: "failed to load preferences file", Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &core.FrameworkError{Op: "prefs.NewFileStore", Kind: "io", Message: "failed to create file watcher", Err: err}
	}
	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, &core.FrameworkError{Op: "prefs.NewFileStore", Kind: "io", Message: "failed to watch preferences directory", Err: err}
	}

	fs.watcher = watcher
	fs.done = make(chan struct{})
	go fs.watchLoop()

	return fs, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (fs *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Name != fs.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := fs.load(); err != nil {
				fs.logger.Warn("failed to reload preferences after file change", map[string]interface{}{"error": err.Error()})
				continue
			}
			fs.logger.Info("preferences reloaded", map[string]interface{}{"path": fs.path})

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("preferences watcher error", map[string]interface{}{"error": err.Error()})

		case <-fs.done:
			return
		}
	}
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			fs.mu.Lock()
			fs.doc = newDocument()
			fs.mu.Unlock()
			return err
		}
		return err
	}

	doc := newDocument()
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return err
		}
	}
	if doc.Bools == nil {
		doc.Bools = make(map[string]bool)
	}
	if doc.Ints == nil {
		doc.Ints = make(map[string]int)
	}
	if doc.Strings == nil {
		doc.Strings = make(map[string]string)
	}
	if doc.OverrideLocators == nil {
		doc.OverrideLocators = make(map[string]core.Locator)
	}

	fs.mu.Lock()
	fs.doc = doc
	fs.mu.Unlock()
	return nil
}

func (fs *FileStore) persist() error {
	fs.mu.RLock()
	data, err := json.MarshalIndent(fs.doc, "", "  ")
	fs.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path, data, 0o644)
}

// GetBool implements Preferences.
func (fs *FileStore) GetBool(ctx context.Context, key string, fallback bool) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if v, ok := fs.doc.Bools[key]; ok {
		return v
	}
	return fallback
}

// GetInt implements Preferences.
func (fs *FileStore) GetInt(ctx context.Context, key string, fallback int) int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if v, ok := fs.doc.Ints[key]; ok {
		return v
	}
	return fallback
}

// GetString implements Preferences.
func (fs *FileStore) GetString(ctx context.Context, key string, fallback string) string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if v, ok := fs.doc.Strings[key]; ok {
		return v
	}
	return fallback
}

// UserOverrideLocator implements Preferences, returning the parsed
// user-override Locator for element, if one is configured and parseable
// (spec.md §4.3 cascade tier 1).
func (fs *FileStore) UserOverrideLocator(ctx context.Context, element core.LogicalElement) (core.Locator, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	loc, ok := fs.doc.OverrideLocators[element.String()]
	if !ok || loc.IsZero() {
		return core.Locator{}, false
	}
	return loc, true
}

// SetUserOverrideLocator implements Preferences, writing through to disk
// immediately (the file watcher then observes its own write, which is a
// harmless no-op reload since the in-memory document already matches).
func (fs *FileStore) SetUserOverrideLocator(ctx context.Context, element core.LogicalElement, locator core.Locator) error {
	fs.mu.Lock()
	fs.doc.OverrideLocators[element.String()] = locator
	fs.mu.Unlock()
	return fs.persist()
}

// Close stops the file watcher goroutine.
func (fs *FileStore) Close() error {
	close(fs.done)
	return fs.watcher.Close()
}
