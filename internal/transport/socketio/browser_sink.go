package socketio

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EmitFunc broadcasts one event to every connected client.
type EmitFunc func(event string, payload any)

// BrowserSink plays through the connected browsers' audio elements. Every
// load carries a sequence number; a client reports the end of playback with
// that number, and only the first report for the current load counts.
type BrowserSink struct {
	mu      sync.Mutex
	emit    EmitFunc
	seq     int
	locator string
	playing bool
	fired   bool
	onEnded func(load int)
}

// NewBrowserSink creates a sink that stays silent until Attach is called.
func NewBrowserSink() *BrowserSink {
	return &BrowserSink{}
}

// Attach sets the broadcast function. The socket server attaches itself on
// construction.
func (b *BrowserSink) Attach(emit EmitFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emit = emit
}

// Load tells every client to load locator.
func (b *BrowserSink) Load(locator string) error {
	b.mu.Lock()
	b.seq++
	b.locator = locator
	b.playing = false
	b.fired = false
	payload := b.loadPayloadLocked()
	emit := b.emit
	b.mu.Unlock()

	if emit != nil {
		emit("pushLoad", payload)
	}
	return nil
}

// Play tells every client to start the loaded locator.
func (b *BrowserSink) Play() error {
	b.mu.Lock()
	b.playing = true
	payload := map[string]interface{}{"seq": b.seq}
	emit := b.emit
	b.mu.Unlock()

	if emit != nil {
		emit("pushPlay", payload)
	}
	return nil
}

// OnEnded sets the end-of-playback callback. Its argument is the load
// sequence number, which counts Load calls.
func (b *BrowserSink) OnEnded(fn func(load int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEnded = fn
}

// Ended handles a client's end report for load seq. It reports whether the
// report was accepted.
func (b *BrowserSink) Ended(seq int) bool {
	b.mu.Lock()
	if seq != b.seq || !b.playing || b.fired {
		b.mu.Unlock()
		log.Debug().Int("seq", seq).Msg("Ignoring stale end report")
		return false
	}
	b.fired = true
	fn := b.onEnded
	b.mu.Unlock()

	if fn != nil {
		go fn(seq)
	}
	return true
}

// Current returns the pushLoad and pushPlay payloads a late client needs to
// join playback, or nils when nothing is loaded.
func (b *BrowserSink) Current() (load, play map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seq == 0 || b.locator == "" {
		return nil, nil
	}
	load = b.loadPayloadLocked()
	if b.playing && !b.fired {
		play = map[string]interface{}{"seq": b.seq}
	}
	return load, play
}

// Close forgets the current load.
func (b *BrowserSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locator = ""
	b.playing = false
	return nil
}

func (b *BrowserSink) loadPayloadLocked() map[string]interface{} {
	return map[string]interface{}{
		"locator": b.locator,
		"seq":     b.seq,
	}
}
