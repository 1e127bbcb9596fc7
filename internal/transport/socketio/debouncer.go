package socketio

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of change notifications into one broadcast per
// topic. A topic's handler runs once the window has passed without a new
// trigger for any topic.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	handlers map[string]func()
	pending  map[string]bool
	order    []string
	timer    *time.Timer
	stopped  bool
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:   window,
		handlers: make(map[string]func()),
		pending:  make(map[string]bool),
	}
}

// Handle sets the broadcast for topic. Handlers run in registration order.
func (d *Debouncer) Handle(topic string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.handlers[topic]; !ok {
		d.order = append(d.order, topic)
	}
	d.handlers[topic] = fn
}

// Trigger marks topic as changed and restarts the window. Unknown topics
// are ignored.
func (d *Debouncer) Trigger(topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if _, ok := d.handlers[topic]; !ok {
		return
	}
	d.pending[topic] = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	var due []func()
	for _, topic := range d.order {
		if d.pending[topic] {
			due = append(due, d.handlers[topic])
		}
	}
	clear(d.pending)
	d.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// Stop drops pending broadcasts and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.pending)
}
