package library

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher collects removal and rename events for watched sample files.
// Events are buffered internally; the bank owner drains them at its next
// checkpoint, so no engine state is ever touched from the watch
// goroutine.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *log.Logger

	mu   sync.Mutex
	gone []string

	done chan struct{}
}

// NewWatcher starts a media watcher.
func NewWatcher(logger *log.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fs, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Debug("backing file went away", "path", ev.Name, "op", ev.Op.String())
				w.mu.Lock()
				w.gone = append(w.gone, ev.Name)
				w.mu.Unlock()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
		case <-w.done:
			return
		}
	}
}

// Add watches one file.
func (w *Watcher) Add(path string) error { return w.fs.Add(path) }

// Remove stops watching one file.
func (w *Watcher) Remove(path string) error { return w.fs.Remove(path) }

// Drain returns the paths whose backing files went away since the last
// call.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	gone := w.gone
	w.gone = nil
	w.mu.Unlock()
	return gone
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
