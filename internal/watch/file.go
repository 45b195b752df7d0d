// Package watch turns file changes and resume-from-sleep into reload triggers.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher signals when a single file is written or replaced. It
// watches the parent directory so atomic rename-into-place is seen.
type FileWatcher struct {
	w        *fsnotify.Watcher
	path     string
	debounce time.Duration
	changed  chan struct{}
	done     chan struct{}
	log      *slog.Logger
}

// NewFileWatcher starts watching path. Bursts of events closer together
// than debounce collapse into one notification.
func NewFileWatcher(logger *slog.Logger, path string, debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	cleaned := filepath.Clean(path)
	if err := w.Add(filepath.Dir(cleaned)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(cleaned), err)
	}

	fw := &FileWatcher{
		w:        w,
		path:     cleaned,
		debounce: debounce,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		log:      logger,
	}
	go fw.loop()
	return fw, nil
}

// Changed returns a channel that receives a value after the file changes.
func (fw *FileWatcher) Changed() <-chan struct{} {
	return fw.changed
}

// Close stops the watcher.
func (fw *FileWatcher) Close() error {
	close(fw.done)
	return fw.w.Close()
}

func (fw *FileWatcher) notify() {
	select {
	case fw.changed <- struct{}{}:
	default:
	}
}

func (fw *FileWatcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			fw.log.Debug("dump changed", "op", ev.Op.String())
			if fw.debounce <= 0 {
				fw.notify()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fw.notify()
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.log.Warn("watch error", "err", err)
		case <-fw.done:
			return
		}
	}
}
