// Package watcher reports debounced changes to a set of files, used to re-run
// manifests while they are being edited.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/depscope/internal/log"
)

// Watcher monitors files for changes and sends one notification per burst.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	files     map[string]struct{}
	dirs      []string
	debounce  time.Duration
	onChange  chan string
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	// Paths are the files to watch. Their directories are watched so that
	// editors replacing a file by rename are still seen.
	Paths    []string
	Debounce time.Duration
}

// DefaultConfig returns sensible defaults for watching paths.
func DefaultConfig(paths ...string) Config {
	return Config{
		Paths:    paths,
		Debounce: 200 * time.Millisecond,
	}
}

// New creates a watcher. Paths are made absolute.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}

	files := make(map[string]struct{}, len(cfg.Paths))
	seenDirs := make(map[string]struct{})
	var dirs []string
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		files:     files,
		dirs:      dirs,
		debounce:  cfg.Debounce,
		onChange:  make(chan string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned channel receives the path of the last
// changed file once a burst of events settles.
func (w *Watcher) Start() (<-chan string, error) {
	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}
	log.Debug(log.CatWatcher, "watching", "files", len(w.files), "debounce", w.debounce)

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending string
	)

	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timerC():
			if pending == "" {
				continue
			}
			// Drop the signal if the consumer has not caught up; it will
			// re-read the file anyway.
			select {
			case w.onChange <- pending:
			default:
			}
			log.Debug(log.CatWatcher, "change settled", "path", pending)
			pending = ""

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether event touches a watched file. Renames onto
// the file show up as Create.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[name]
	return ok
}
