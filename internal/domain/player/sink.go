package player

import "errors"

// ErrAudioUnavailable is returned by sinks that cannot reach an output
// device on this host.
var ErrAudioUnavailable = errors.New("audio output unavailable")

// Sink is the single playback element driven by the controller.
//
// Load replaces the current source. Every Load call, successful or not,
// starts a new load; loads are numbered from 1. Play starts the current
// source from the beginning. The ended callback receives the number of the
// load whose playback completed. It must fire at most once per Play, and
// never from inside Load or Play.
type Sink interface {
	Load(locator string) error
	Play() error
	OnEnded(fn func(load int))
	Close() error
}
