package manifest

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/sockrpc/internal/logger"
)

// Watcher reloads a manifest file when it changes on disk and swaps the
// result into an Engine. The parent directory is watched rather than the
// file itself so editors that replace the file by rename are still seen.
type Watcher struct {
	path    string
	engine  *Engine
	watcher *fsnotify.Watcher
	stop    chan struct{}
	log     *logger.Logger
	onLoad  func(*Manifest)
}

// NewWatcher starts watching the manifest at path on behalf of engine.
// A non-nil onLoad runs on every successfully loaded manifest before it is
// swapped in, letting the owner graft in commands the file does not
// declare.
func NewWatcher(path string, engine *Engine, log *logger.Logger, onLoad func(*Manifest)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	if log == nil {
		log = logger.Global()
	}

	w := &Watcher{
		path:    abs,
		engine:  engine,
		watcher: fsw,
		stop:    make(chan struct{}),
		log:     log.WithPrefix("manifest"),
		onLoad:  onLoad,
	}

	go w.watch()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}

// watch monitors filesystem events and triggers reloads
func (w *Watcher) watch() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error: %v", err)
		}
	}
}

// reload re-reads the manifest. A file that fails to load keeps the
// current manifest in service; an unchanged fingerprint skips the swap.
func (w *Watcher) reload() {
	m, err := LoadFile(w.path)
	if err != nil {
		w.log.Error("reload failed, keeping current manifest: %v", err)
		return
	}

	if current := w.engine.Current(); current != nil && current.Fingerprint() == m.Fingerprint() {
		w.log.Debug("reload skipped, content unchanged")
		return
	}

	if w.onLoad != nil {
		w.onLoad(m)
	}
	w.engine.Reload(m)
	w.log.Info("reloaded %s", m.String())
}
