//go:build !((linux && cgo) || windows || darwin)

package speaker

import (
	"context"
	"net/http"
	"sync"

	"github.com/edumarques81/stellar-player/internal/domain/player"
)

// Available reports whether this build can drive the sound card.
const Available = false

// Sink decodes sources but cannot play them: the speaker backend needs cgo
// on this platform.
type Sink struct {
	client *http.Client

	mu      sync.Mutex
	onEnded func(load int)
}

// NewSink creates a sink that validates sources only.
func NewSink(client *http.Client) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{client: client}
}

// Load decodes locator so format errors still surface.
func (s *Sink) Load(locator string) error {
	streamer, _, err := Open(context.Background(), s.client, locator)
	if err != nil {
		return err
	}
	return streamer.Close()
}

// Play always fails.
func (s *Sink) Play() error {
	return player.ErrAudioUnavailable
}

// OnEnded sets the end-of-playback callback. It never fires.
func (s *Sink) OnEnded(fn func(load int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }
