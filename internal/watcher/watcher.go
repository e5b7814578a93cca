// Package watcher triggers registry refreshes when the modules root changes
// on disk.
package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceInterval coalesces bursts of filesystem events into one refresh.
const debounceInterval = 500 * time.Millisecond

// Watcher debounces filesystem events on the modules root into refresh
// calls.
type Watcher struct {
	fs      *fsnotify.Watcher
	refresh func() error
	log     zerolog.Logger
	done    chan struct{}
}

// New watches root and calls refresh after changes settle.
func New(root string, refresh func() error, log zerolog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(root); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		fs:      fs,
		refresh: refresh,
		log:     log.With().Str("component", "watcher").Logger(),
		done:    make(chan struct{}),
	}, nil
}

// Start begins dispatching refreshes in the background.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) loop() {
	debounce := time.NewTimer(debounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				// Stop and drain before Reset so a concurrent fire does not
				// leave a stale tick that would trigger a second refresh.
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceInterval)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		case <-debounce.C:
			if err := w.refresh(); err != nil {
				w.log.Warn().Err(err).Msg("refresh after change failed")
			}
		case <-w.done:
			return
		}
	}
}
