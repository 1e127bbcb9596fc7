package player_test

import (
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/domain/player"
	"github.com/edumarques81/stellar-player/internal/domain/playlist"
)

// fakeSink records every call made by the controller.
type fakeSink struct {
	mu      sync.Mutex
	calls   []string
	loaded  []string
	loadErr error
	playErr error
	ended   func(load int)
	closed  bool
}

func (s *fakeSink) Load(locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "load")
	s.loaded = append(s.loaded, locator)
	return s.loadErr
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "play")
	return s.playErr
}

func (s *fakeSink) OnEnded(fn func(int)) { s.ended = fn }

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

// loads counts Load calls, the numbering sinks report ends with.
func (s *fakeSink) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loaded)
}

func (s *fakeSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loaded) == 0 {
		return ""
	}
	return s.loaded[len(s.loaded)-1]
}

func (s *fakeSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeFile struct{ path string }

func (f fakeFile) Path() string                     { return f.path }
func (f fakeFile) MediaType() string                { return "audio/mpeg" }
func (f fakeFile) ModTime() time.Time               { return time.Time{} }
func (f fakeFile) Open() (io.ReadSeekCloser, error) { return nil, errors.New("not readable") }

// fakeMinter tracks which handles are live.
type fakeMinter struct {
	live    map[string]bool
	order   []string
	counter int
}

func newFakeMinter() *fakeMinter { return &fakeMinter{live: make(map[string]bool)} }

func (m *fakeMinter) Mint(f catalog.LocalFile) (string, func(), error) {
	m.counter++
	h := "blob:" + f.Path() + "#" + string(rune('0'+m.counter))
	m.live[h] = true
	m.order = append(m.order, "mint "+h)
	return h, func() {
		delete(m.live, h)
		m.order = append(m.order, "release "+h)
	}, nil
}

func remote(title, album string) catalog.Track {
	return catalog.Track{ID: title, Title: title, Album: album, Source: catalog.RemoteSource{URL: "http://music/" + album + "/" + title + ".mp3"}}
}

func local(title, album string) catalog.Track {
	return catalog.Track{ID: title, Title: title, Album: album, Source: catalog.LocalSource{File: fakeFile{path: album + "/" + title + ".mp3"}}}
}

func newController(t *testing.T) (*player.Controller, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	c := player.NewController(sink, newFakeMinter(), playlist.WithRand(rand.New(rand.NewPCG(5, 9))))
	return c, sink
}

func TestRemoteLoadScenario(t *testing.T) {
	c, sink := newController(t)

	albums := []catalog.AlbumManifest{
		{Name: "A", Tracks: []catalog.TrackManifest{{Title: "x", URL: "u1"}, {Title: "y", URL: "u2"}}},
		{Name: "B", Tracks: []catalog.TrackManifest{{Title: "z", URL: "u3"}}},
	}
	tracks, err := catalog.FromManifest(albums)
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}
	c.ReplaceCatalog(tracks)

	snap := c.Snapshot()
	if len(snap.Tracks) != 3 || snap.Index != 0 || snap.Filter != catalog.AllAlbums {
		t.Fatalf("unexpected snapshot: %d tracks, index %d, filter %q", len(snap.Tracks), snap.Index, snap.Filter)
	}
	if sink.callCount() != 0 {
		t.Error("loading a catalog must not touch playback")
	}

	c.ChangeFilter("B")
	snap = c.Snapshot()
	if len(snap.Tracks) != 1 || snap.Tracks[0].Title != "z" || snap.Index != 0 {
		t.Fatalf("filter B: got %d tracks at %d", len(snap.Tracks), snap.Index)
	}
	if sink.callCount() != 0 {
		t.Error("changing the filter must not touch playback")
	}

	if err := c.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	snap = c.Snapshot()
	if snap.Index != 0 {
		t.Errorf("Next on a single track should wrap to 0, got %d", snap.Index)
	}
	if sink.last() != "u3" {
		t.Errorf("sink loaded %q, want u3", sink.last())
	}
}

func TestLocalAppendScenario(t *testing.T) {
	c, sink := newController(t)

	files := []catalog.LocalFile{
		fakeFile{path: "Album1/song1.mp3"},
		fakeFile{path: "Album1/song2.mp3"},
	}
	c.AppendCatalog(catalog.FromLocalFiles(files))

	snap := c.Snapshot()
	if len(snap.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(snap.Tracks))
	}
	for _, tr := range snap.Tracks {
		if tr.Album != "Album1" {
			t.Errorf("album = %q, want Album1", tr.Album)
		}
	}

	if err := c.SelectTrack(1); err != nil {
		t.Fatalf("SelectTrack failed: %v", err)
	}
	if !strings.HasPrefix(sink.last(), "blob:Album1/song2.mp3") {
		t.Errorf("sink loaded %q, want a handle for song2", sink.last())
	}

	if err := c.TrackEnded(sink.loads()); err != nil {
		t.Fatalf("TrackEnded failed: %v", err)
	}
	snap = c.Snapshot()
	if snap.Index != 0 {
		t.Errorf("index after end of last track = %d, want 0", snap.Index)
	}
	if !strings.HasPrefix(sink.last(), "blob:Album1/song1.mp3") {
		t.Errorf("sink loaded %q, want a handle for song1", sink.last())
	}
}

func TestAppendKeepsExistingTracks(t *testing.T) {
	c, _ := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("r1", "R")})
	c.AppendCatalog([]catalog.Track{local("l1", "L")})

	snap := c.Snapshot()
	if len(snap.Tracks) != 2 || snap.Tracks[0].Title != "r1" || snap.Tracks[1].Title != "l1" {
		t.Errorf("unexpected catalog after append: %+v", snap.Tracks)
	}
	if c.CatalogSize() != 2 {
		t.Errorf("CatalogSize() = %d, want 2", c.CatalogSize())
	}

	c.ReplaceCatalog([]catalog.Track{remote("r2", "R")})
	if c.CatalogSize() != 1 {
		t.Errorf("replace should drop the previous catalog, size = %d", c.CatalogSize())
	}
}

func TestHandleReleasedBeforeNextAssignment(t *testing.T) {
	sink := &fakeSink{}
	minter := newFakeMinter()
	c := player.NewController(sink, minter)
	c.AppendCatalog([]catalog.Track{local("a", "X"), local("b", "X"), local("c", "X")})

	for i := 0; i < 3; i++ {
		if err := c.SelectTrack(i); err != nil {
			t.Fatalf("SelectTrack(%d) failed: %v", i, err)
		}
		if len(minter.live) != 1 {
			t.Errorf("after select %d: %d live handles, want 1", i, len(minter.live))
		}
		if !minter.live[sink.last()] {
			t.Errorf("the sink's locator %q should be live", sink.last())
		}
	}

	// Each new handle is minted, then the previous one is released before
	// the sink loads.
	want := []string{"mint", "mint", "release", "mint", "release"}
	if len(minter.order) != len(want) {
		t.Fatalf("minter order = %v", minter.order)
	}
	for i, w := range want {
		if !strings.HasPrefix(minter.order[i], w) {
			t.Errorf("step %d = %q, want %s", i, minter.order[i], w)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(minter.live) != 0 {
		t.Errorf("Close should release the last handle, %d live", len(minter.live))
	}
	if !sink.closed {
		t.Error("Close should close the sink")
	}
}

func TestLocalTrackWithoutMinter(t *testing.T) {
	sink := &fakeSink{}
	c := player.NewController(sink, nil)
	c.AppendCatalog([]catalog.Track{local("a", "X")})

	err := c.SelectTrack(0)
	if !errors.Is(err, catalog.ErrNoMinter) {
		t.Errorf("expected ErrNoMinter, got %v", err)
	}
	if sink.callCount() != 0 {
		t.Error("sink should not be loaded when no locator could be produced")
	}
}

func TestSelectOutOfRangeIsNoOp(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X")})
	_ = c.SelectTrack(1)
	before := sink.callCount()

	for _, i := range []int{-1, 2, 99} {
		if err := c.SelectTrack(i); err != nil {
			t.Errorf("SelectTrack(%d) returned %v", i, err)
		}
	}
	if sink.callCount() != before {
		t.Error("out-of-range select must not touch the sink")
	}
	if c.Snapshot().Index != 1 {
		t.Errorf("index = %d, want 1", c.Snapshot().Index)
	}
}

func TestNavigationWraps(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X"), remote("c", "X")})

	ended := func() error { return c.TrackEnded(sink.loads()) }

	tests := []struct {
		name      string
		do        func() error
		wantIndex int
		wantURL   string
	}{
		{"prev from first", c.Previous, 2, "http://music/X/c.mp3"},
		{"next from last", c.Next, 0, "http://music/X/a.mp3"},
		{"next", c.Next, 1, "http://music/X/b.mp3"},
		{"ended mid list", ended, 2, "http://music/X/c.mp3"},
		{"ended at last", ended, 0, "http://music/X/a.mp3"},
	}

	for _, tt := range tests {
		if err := tt.do(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := c.Snapshot().Index; got != tt.wantIndex {
			t.Errorf("%s: index = %d, want %d", tt.name, got, tt.wantIndex)
		}
		if sink.last() != tt.wantURL {
			t.Errorf("%s: loaded %q, want %q", tt.name, sink.last(), tt.wantURL)
		}
	}
}

func TestSinkEndedCallbackAdvances(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X")})
	_ = c.SelectTrack(0)

	sink.ended(sink.loads())

	if c.Snapshot().Index != 1 {
		t.Errorf("index = %d, want 1", c.Snapshot().Index)
	}
	if sink.last() != "http://music/X/b.mp3" {
		t.Errorf("loaded %q, want b", sink.last())
	}
}

func TestEndOfSupersededLoadIgnored(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X"), remote("c", "X"), remote("d", "X")})
	_ = c.SelectTrack(0)
	endedA := sink.loads()
	_ = c.SelectTrack(3)

	if err := c.TrackEnded(endedA); err != nil {
		t.Fatalf("TrackEnded failed: %v", err)
	}
	if got := c.Snapshot().Index; got != 3 {
		t.Errorf("index = %d, want 3", got)
	}
	if sink.last() != "http://music/X/d.mp3" {
		t.Errorf("loaded %q, want d", sink.last())
	}

	if err := c.TrackEnded(sink.loads()); err != nil {
		t.Fatalf("TrackEnded failed: %v", err)
	}
	if got := c.Snapshot().Index; got != 0 {
		t.Errorf("index after d ended = %d, want 0", got)
	}
}

func TestEmptyListIntentsAreSafe(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X")})
	c.ChangeFilter("Nope")

	for name, do := range map[string]func() error{
		"next":    c.Next,
		"prev":    c.Previous,
		"ended":   func() error { return c.TrackEnded(sink.loads()) },
		"shuffle": c.ToggleShuffle,
		"select":  func() error { return c.SelectTrack(0) },
	} {
		if err := do(); err != nil {
			t.Errorf("%s on empty list returned %v", name, err)
		}
	}
	if sink.callCount() != 0 {
		t.Errorf("sink touched %d times on an empty list", sink.callCount())
	}

	snap := c.Snapshot()
	if len(snap.Tracks) != 0 || snap.Index != 0 {
		t.Errorf("state corrupted: %d tracks, index %d", len(snap.Tracks), snap.Index)
	}
}

func TestToggleShufflePlaysNewHead(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X"), remote("c", "X"), remote("d", "Y")})
	c.ChangeFilter("X")
	_ = c.SelectTrack(2)

	if err := c.ToggleShuffle(); err != nil {
		t.Fatalf("ToggleShuffle failed: %v", err)
	}
	snap := c.Snapshot()
	if !snap.Shuffled || snap.Index != 0 {
		t.Errorf("shuffled=%v index=%d, want true 0", snap.Shuffled, snap.Index)
	}
	if len(snap.Tracks) != 3 {
		t.Errorf("shuffle changed membership: %d tracks", len(snap.Tracks))
	}
	if snap.NowPlaying == nil || snap.NowPlaying.Title != snap.Tracks[0].Title {
		t.Error("toggle should play the new first track")
	}
	if sink.last() != "http://music/X/"+snap.Tracks[0].Title+".mp3" {
		t.Errorf("loaded %q, want head %q", sink.last(), snap.Tracks[0].Title)
	}

	if err := c.ToggleShuffle(); err != nil {
		t.Fatalf("ToggleShuffle off failed: %v", err)
	}
	if snap := c.Snapshot(); snap.Shuffled || snap.Tracks[0].Title != "a" {
		t.Errorf("unshuffle should restore catalog order, head = %q", snap.Tracks[0].Title)
	}
}

func TestSinkErrorsAreReturned(t *testing.T) {
	c, sink := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X")})

	sink.loadErr = errors.New("decoder busy")
	if err := c.SelectTrack(1); err == nil || !errors.Is(err, sink.loadErr) {
		t.Errorf("expected load error, got %v", err)
	}
	if c.Snapshot().Index != 1 {
		t.Error("state should still reflect the selection")
	}

	sink.loadErr = nil
	sink.playErr = player.ErrAudioUnavailable
	if err := c.Next(); !errors.Is(err, player.ErrAudioUnavailable) {
		t.Errorf("expected ErrAudioUnavailable, got %v", err)
	}
}

func TestObserversRunOutsideLock(t *testing.T) {
	c, _ := newController(t)

	var seen []player.Snapshot
	c.OnChange(func(s player.Snapshot) {
		// Re-entering the controller must not deadlock.
		_ = c.Snapshot()
		seen = append(seen, s)
	})

	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "Y")})
	c.ChangeFilter("Y")
	_ = c.Next()

	if len(seen) != 3 {
		t.Fatalf("observer calls = %d, want 3", len(seen))
	}
	if seen[1].Filter != "Y" || len(seen[1].Tracks) != 1 {
		t.Errorf("filter snapshot = %+v", seen[1].View)
	}
	if seen[2].NowPlaying == nil || seen[2].NowPlaying.Title != "b" {
		t.Error("snapshot after Next should carry the now playing track")
	}
}

func TestSnapshotToJSON(t *testing.T) {
	c, _ := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X")})

	m := c.Snapshot().ToJSON()
	if m["nowPlaying"] != nil {
		t.Errorf("nowPlaying before playback = %v, want nil", m["nowPlaying"])
	}
	if m["filter"] != catalog.AllAlbums {
		t.Errorf("filter = %v", m["filter"])
	}

	_ = c.SelectTrack(0)
	m = c.Snapshot().ToJSON()
	np, ok := m["nowPlaying"].(map[string]interface{})
	if !ok || np["title"] != "a" {
		t.Errorf("nowPlaying = %v", m["nowPlaying"])
	}
}

func TestConcurrentIntents(t *testing.T) {
	c, _ := newController(t)
	c.ReplaceCatalog([]catalog.Track{remote("a", "X"), remote("b", "X"), remote("c", "Y")})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 5 {
			case 0:
				_ = c.Next()
			case 1:
				_ = c.Previous()
			case 2:
				_ = c.ToggleShuffle()
			case 3:
				c.ChangeFilter([]string{"X", "Y", catalog.AllAlbums}[i%3])
			case 4:
				_ = c.TrackEnded(i)
			}
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	if len(snap.Tracks) > 0 && (snap.Index < 0 || snap.Index >= len(snap.Tracks)) {
		t.Errorf("index %d out of range for %d tracks", snap.Index, len(snap.Tracks))
	}
}
