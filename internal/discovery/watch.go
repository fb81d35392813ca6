package discovery

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/obsproc/quicklook/internal/logging"
)

// Watcher triggers a refresh callback when the registry file changes
// on disk, as an alternative to fixed-interval refresh. Events are
// debounced; bursts of writes produce one trigger.
type Watcher struct {
	fs     *fsnotify.Watcher
	done   chan struct{}
	closed chan struct{}
}

// WatchStore watches the registry file at path and calls trigger after
// the file has been quiet for the debounce window. trigger is called
// from the watcher goroutine; callers route it through the UI loop.
func WatchStore(path string, debounce time.Duration, trigger func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: sqlite swaps WAL files around the DB, and
	// watching the file itself loses the watch on replace.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher{fs: fs, done: make(chan struct{}), closed: make(chan struct{})}
	go w.run(filepath.Base(path), debounce, trigger)
	return w, nil
}

func (w *Watcher) run(base string, debounce time.Duration, trigger func()) {
	defer close(w.closed)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// The WAL and journal share the DB file's prefix.
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if len(name) < len(base) || name[:len(base)] != base {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Warn("Store watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			trigger()
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	<-w.closed
	return err
}
