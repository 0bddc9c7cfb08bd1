package server

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the docs directory and the default playground file and
// triggers a reload when they change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	extra    map[string]bool // absolute paths watched outside rootDir's .md files
	onReload func(filePath string) error
	logger   *zap.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher creates a file watcher for rootDir. Changes to .md files under
// it, and to any of extraFiles, are passed to onReload as paths relative to
// rootDir.
func NewWatcher(rootDir string, extraFiles []string, onReload func(string) error, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		extra:    make(map[string]bool),
		onReload: onReload,
		logger:   logger.Named("watch"),
		done:     make(chan struct{}),
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	for _, f := range extraFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		w.extra[abs] = true
		// Editors replace files on save, so watch the directory.
		if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			// Skip hidden directories like .git
			if path != dir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}

			if err := w.watcher.Add(path); err != nil {
				return err
			}
			w.logger.Debug("watching directory", zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) relevant(name string) bool {
	if filepath.Ext(name) == ".md" {
		return true
	}
	abs, err := filepath.Abs(name)
	return err == nil && w.extra[abs]
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := w.addDirectoryRecursive(event.Name); err != nil {
							w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
						}
						continue
					}
				}
				if !w.relevant(event.Name) {
					continue
				}

				relPath, err := filepath.Rel(w.rootDir, event.Name)
				if err != nil {
					relPath = event.Name
				}
				w.logger.Debug("file changed", zap.String("path", relPath), zap.Stringer("op", event.Op))

				if err := w.onReload(relPath); err != nil {
					w.logger.Warn("reload failed", zap.String("path", relPath), zap.Error(err))
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
