package socketio_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edumarques81/stellar-player/internal/transport/socketio"
)

func TestDebouncerBurstCollapsesToOne(t *testing.T) {
	var calls int32

	d := socketio.NewDebouncer(50 * time.Millisecond)
	defer d.Stop()
	d.Handle("playlist", func() { atomic.AddInt32(&calls, 1) })

	// A shuffle toggle followed by several quick next presses.
	for i := 0; i < 10; i++ {
		d.Trigger("playlist")
	}

	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 broadcast, got %d", got)
	}
}

func TestDebouncerSlidingWindow(t *testing.T) {
	var calls int32

	d := socketio.NewDebouncer(50 * time.Millisecond)
	defer d.Stop()
	d.Handle("playlist", func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		d.Trigger("playlist")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 broadcast for spaced triggers, got %d", got)
	}
}

func TestDebouncerTopicsRunInRegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, s)
		}
	}

	d := socketio.NewDebouncer(30 * time.Millisecond)
	defer d.Stop()
	d.Handle("playlist", record("playlist"))
	d.Handle("status", record("status"))

	d.Trigger("status")
	d.Trigger("playlist")
	d.Trigger("unknown")

	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "playlist" || got[1] != "status" {
		t.Errorf("broadcasts = %v, want [playlist status]", got)
	}
}

func TestDebouncerSeparateWindowsFireIndependently(t *testing.T) {
	var calls int32

	d := socketio.NewDebouncer(30 * time.Millisecond)
	defer d.Stop()
	d.Handle("playlist", func() { atomic.AddInt32(&calls, 1) })

	d.Trigger("playlist")
	time.Sleep(120 * time.Millisecond)
	d.Trigger("playlist")
	time.Sleep(120 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 broadcasts, got %d", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	tests := []struct {
		name      string
		stopFirst bool
	}{
		{"stop drops pending", false},
		{"trigger after stop is ignored", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			d := socketio.NewDebouncer(30 * time.Millisecond)
			d.Handle("playlist", func() { atomic.AddInt32(&calls, 1) })

			if tt.stopFirst {
				d.Stop()
				d.Trigger("playlist")
			} else {
				d.Trigger("playlist")
				d.Stop()
			}

			time.Sleep(100 * time.Millisecond)
			if got := atomic.LoadInt32(&calls); got != 0 {
				t.Errorf("expected no broadcast, got %d", got)
			}
		})
	}
}
