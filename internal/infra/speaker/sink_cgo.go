//go:build (linux && cgo) || windows || darwin

package speaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

// Available reports whether this build can drive the sound card.
const Available = true

const sampleRate = beep.SampleRate(44100)

var initOnce sync.Once
var initErr error

func initSpeaker() error {
	initOnce.Do(func() {
		initErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	return initErr
}

// Sink plays one decoded source at a time on the default output device.
type Sink struct {
	client *http.Client

	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	gen      uint64
	loads    int
	onEnded  func(load int)
	closed   bool
}

// NewSink creates a speaker sink. Remote locators are fetched with client,
// or http.DefaultClient when nil.
func NewSink(client *http.Client) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{client: client}
}

// Load decodes locator and stops whatever was playing.
func (s *Sink) Load(locator string) error {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	streamer, format, err := Open(context.Background(), s.client, locator)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		streamer.Close()
		return errors.New("speaker sink closed")
	}
	s.stopLocked()
	s.streamer = streamer
	s.format = format
	log.Debug().Str("locator", locator).Int("sampleRate", int(format.SampleRate)).Msg("Speaker source loaded")
	return nil
}

// Play starts the loaded source from the beginning.
func (s *Sink) Play() error {
	if err := initSpeaker(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return errors.New("no source loaded")
	}
	speaker.Clear()
	if err := s.streamer.Seek(0); err != nil {
		return err
	}

	s.gen++
	gen, load := s.gen, s.loads
	var stream beep.Streamer = s.streamer
	if s.format.SampleRate != sampleRate {
		stream = beep.Resample(4, s.format.SampleRate, sampleRate, stream)
	}
	// The callback runs under the speaker lock; hand off before touching s.mu.
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		go s.finished(gen, load)
	})))
	return nil
}

// OnEnded sets the end-of-playback callback. It receives the number of the
// Load call whose source finished.
func (s *Sink) OnEnded(fn func(load int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Close stops playback and releases the decoded source.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

func (s *Sink) stopLocked() {
	s.gen++
	speaker.Clear()
	if s.streamer != nil {
		s.streamer.Close()
		s.streamer = nil
	}
}

func (s *Sink) finished(gen uint64, load int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn(load)
	}
}
