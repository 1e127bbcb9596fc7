// Package watch appends audio files that appear under watched directories
// to the catalog.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// DefaultWindow is how long the watcher waits for a burst of new files to
// settle before ingesting them.
const DefaultWindow = 2 * time.Second

// Ingester receives the coalesced file sets. *library.Service implements it.
type Ingester interface {
	AddLocal(ctx context.Context, payload catalog.Payload) (int, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(w *Watcher) { w.window = d }
}

// Watcher watches directory trees with fsnotify. Directories created later
// are watched too, and the audio already inside them is picked up.
type Watcher struct {
	fsw    *fsnotify.Watcher
	ingest Ingester
	window time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	flushes chan struct{}
}

// New creates a watcher over dirs. Every directory must exist.
func New(ingest Ingester, dirs []string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fsw:     fsw,
		ingest:  ingest,
		window:  DefaultWindow,
		pending: make(map[string]struct{}),
		flushes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, dir := range dirs {
		if err := w.addTree(dir, false); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	log.Info().Strs("dirs", dirs).Dur("window", w.window).Msg("Library watcher started")
	return w, nil
}

// Run handles events until ctx is done, then closes the watcher. Files
// still pending are ingested before Run returns.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.flush(context.WithoutCancel(ctx))
			log.Info().Msg("Library watcher stopped")
			return

		case <-w.flushes:
			w.flush(ctx)

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Library watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
		w.queue(event.Name)

	case event.Has(fsnotify.Write):
		// A file still being copied in keeps its batch open.
		w.mu.Lock()
		_, ok := w.pending[event.Name]
		w.mu.Unlock()
		if ok {
			w.restartTimer()
		}
	}
}

// addTree watches dir and its sub-directories. With scan set, audio files
// already present are queued.
func (w *Watcher) addTree(dir string, scan bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			log.Debug().Err(err).Str("path", p).Msg("Skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			return nil
		}
		if scan {
			w.queue(p)
		}
		return nil
	})
}

func (w *Watcher) queue(p string) {
	if !catalog.IsAudio(catalog.NewDiskFile(p, p, "", time.Time{})) {
		return
	}
	w.mu.Lock()
	w.pending[p] = struct{}{}
	w.mu.Unlock()
	w.restartTimer()
}

func (w *Watcher) restartTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		select {
		case w.flushes <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := lo.Keys(w.pending)
	clear(w.pending)
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	n, err := w.ingest.AddLocal(ctx, catalog.PlainFileSet{Paths: paths})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Int("files", len(paths)).Msg("Failed to add watched files")
		return
	}
	log.Info().Int("files", len(paths)).Int("tracks", n).Msg("Added new files from watched directories")
}
