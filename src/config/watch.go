package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"epsilon-frontend/src/render"
)

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	onChange func(Config)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup

	mu   sync.Mutex
	last Config
}

// Watch calls onChange from a background goroutine with every valid version
// of path written after the call. The directory is watched rather than the
// file, since editors usually replace files instead of writing them in
// place. Invalid versions are logged and skipped.
func Watch(path string, current Config, onChange func(Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config: %w", err)
	}
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		watcher:  fw,
		done:     make(chan struct{}),
		last:     current,
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	log := render.Logger()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watch", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	log := render.Logger()
	cfg, err := Load(w.path)
	if err != nil {
		// a rename leaves the file briefly missing, the create follows
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("config reload skipped", "path", w.path, "err", err)
		}
		return
	}
	w.mu.Lock()
	same := cfg == w.last
	w.last = cfg
	w.mu.Unlock()
	if same {
		return
	}
	log.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
