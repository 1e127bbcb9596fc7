package mpd

import (
	"fmt"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// Backend is the subset of MPD commands the sink issues. *Client
// implements it.
type Backend interface {
	Clear() error
	Add(uri string) error
	Play(pos int) error
	Stop() error
	SetRepeat(on bool) error
	Status() (mpd.Attrs, error)
	Close() error
}

// Sink plays one locator at a time through MPD. The queue holds a single
// entry; ended fires when MPD reports the player stopped after a Play.
type Sink struct {
	backend Backend

	mu        sync.Mutex
	loads     int
	armed     bool
	onEnded   func(load int)
	done      chan struct{}
	closeOnce sync.Once
}

// NewSink creates a sink over backend. events carries MPD subsystem names,
// as delivered by Client.Watch("player"); the sink stops listening when it
// is closed.
func NewSink(backend Backend, events <-chan string) *Sink {
	s := &Sink{
		backend: backend,
		done:    make(chan struct{}),
	}
	if err := backend.SetRepeat(false); err != nil {
		log.Warn().Err(err).Msg("Failed to disable MPD repeat")
	}
	go s.listen(events)
	return s
}

// Load replaces the MPD queue with locator.
func (s *Sink) Load(locator string) error {
	s.mu.Lock()
	s.loads++
	s.armed = false
	s.mu.Unlock()

	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("mpd clear: %w", err)
	}
	if err := s.backend.Add(locator); err != nil {
		return fmt.Errorf("mpd add %q: %w", locator, err)
	}
	log.Debug().Str("uri", locator).Msg("MPD source loaded")
	return nil
}

// Play starts the loaded entry from the beginning.
func (s *Sink) Play() error {
	if err := s.backend.Play(0); err != nil {
		return fmt.Errorf("mpd play: %w", err)
	}
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
	return nil
}

// OnEnded sets the end-of-playback callback. It receives the number of the
// Load call whose entry finished.
func (s *Sink) OnEnded(fn func(load int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Close stops playback and the event listener.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if stopErr := s.backend.Stop(); stopErr != nil {
			log.Debug().Err(stopErr).Msg("MPD stop on close failed")
		}
		err = s.backend.Close()
	})
	return err
}

func (s *Sink) listen(events <-chan string) {
	for {
		select {
		case <-s.done:
			return
		case subsystem, ok := <-events:
			if !ok {
				return
			}
			if subsystem == "player" {
				s.checkEnded()
			}
		}
	}
}

// checkEnded reads the live status, so idle events caused by Load are
// ignored once the next Play has started.
func (s *Sink) checkEnded() {
	status, err := s.backend.Status()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read MPD status")
		return
	}
	if status["state"] != "stop" {
		return
	}

	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	fn, load := s.onEnded, s.loads
	s.mu.Unlock()

	log.Debug().Int("load", load).Msg("MPD playback ended")
	if fn != nil {
		go fn(load)
	}
}
