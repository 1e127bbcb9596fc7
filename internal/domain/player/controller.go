// Package player provides the transport controller: it maps user intents
// and sink notifications onto playlist transitions and drives the sink.
package player

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/domain/playlist"
)

// Snapshot is the playlist view plus the track last handed to the sink.
type Snapshot struct {
	playlist.View
	NowPlaying *catalog.Track
}

// ToJSON returns the snapshot in the format pushed to clients.
func (s Snapshot) ToJSON() map[string]interface{} {
	m := s.View.ToJSON()
	if s.NowPlaying != nil {
		m["nowPlaying"] = s.NowPlaying.ToJSON()
	} else {
		m["nowPlaying"] = nil
	}
	return m
}

// Controller owns the playlist state and the playback sink. Every intent
// runs under one mutex so transitions never interleave.
type Controller struct {
	mu         sync.Mutex
	state      *playlist.State
	sink       Sink
	minter     catalog.HandleMinter
	release    func()
	nowPlaying *catalog.Track
	loads      int // Load calls made on the sink

	obsMu     sync.RWMutex
	observers []func(Snapshot)
}

// NewController creates a controller driving sink. minter resolves local
// tracks to playable locators and may be nil when only remote catalogs are
// used.
func NewController(sink Sink, minter catalog.HandleMinter, opts ...playlist.Option) *Controller {
	c := &Controller{
		state:  playlist.New(opts...),
		sink:   sink,
		minter: minter,
	}
	sink.OnEnded(func(load int) {
		if err := c.TrackEnded(load); err != nil {
			log.Error().Err(err).Msg("Failed to advance after track ended")
		}
	})
	return c
}

// OnChange registers fn to run after every transition. Observers run
// outside the controller lock.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SelectTrack plays the track at index i of the active list. An index out
// of range is ignored.
func (c *Controller) SelectTrack(i int) error {
	c.mu.Lock()
	_, ok := c.state.SetIndex(i)
	if !ok {
		n := c.state.Len()
		c.mu.Unlock()
		log.Debug().Int("index", i).Int("len", n).Msg("Select out of range ignored")
		return nil
	}
	err := c.playCurrentLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// Next plays the following track, wrapping to the first.
func (c *Controller) Next() error {
	return c.step("Next", nil, (*playlist.State).Advance)
}

// Previous plays the preceding track, wrapping to the last.
func (c *Controller) Previous() error {
	return c.step("Previous", nil, (*playlist.State).Retreat)
}

// TrackEnded handles the sink's end-of-playback notification for load: the
// next track plays, or the first one after the last. Reports for any load
// but the latest are ignored.
func (c *Controller) TrackEnded(load int) error {
	return c.step("TrackEnded", func() bool {
		if load != c.loads {
			log.Debug().Int("load", load).Int("current", c.loads).Msg("Ignoring end of superseded track")
			return false
		}
		return true
	}, (*playlist.State).TrackEnded)
}

// ToggleShuffle flips shuffle and starts the new first track.
func (c *Controller) ToggleShuffle() error {
	c.mu.Lock()
	v := c.state.SetShuffled(!c.state.Shuffled())
	log.Info().Bool("shuffled", v.Shuffled).Int("tracks", len(v.Tracks)).Msg("ToggleShuffle")
	err := c.playCurrentLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// ChangeFilter restricts the active list to album, or every album for
// "all". Playback is not touched.
func (c *Controller) ChangeFilter(album string) {
	c.mu.Lock()
	v := c.state.SetFilter(album)
	log.Info().Str("filter", v.Filter).Int("tracks", len(v.Tracks)).Msg("ChangeFilter")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// ReplaceCatalog installs a freshly fetched catalog. Playback is not
// touched.
func (c *Controller) ReplaceCatalog(tracks []catalog.Track) {
	c.mu.Lock()
	v := c.state.SetCatalog(tracks)
	log.Info().Int("tracks", len(tracks)).Str("filter", v.Filter).Msg("Catalog replaced")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// AppendCatalog adds locally ingested tracks after the existing ones.
// Playback is not touched.
func (c *Controller) AppendCatalog(tracks []catalog.Track) {
	c.mu.Lock()
	v := c.state.SetCatalog(append(c.state.Catalog(), tracks...))
	log.Info().Int("added", len(tracks)).Int("total", len(v.Tracks)).Str("filter", v.Filter).Msg("Catalog appended")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// CatalogSize returns the number of tracks in the full catalog.
func (c *Controller) CatalogSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.Catalog())
}

// Close releases the last locator and closes the sink.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.release != nil {
		c.release()
		c.release = nil
	}
	return c.sink.Close()
}

// step applies move and plays the new current track. guard, when set, runs
// under the lock and can veto the step.
func (c *Controller) step(name string, guard func() bool, move func(*playlist.State) playlist.View) error {
	c.mu.Lock()
	if guard != nil && !guard() {
		c.mu.Unlock()
		return nil
	}
	if c.state.Len() == 0 {
		c.mu.Unlock()
		log.Debug().Str("intent", name).Msg("Empty playlist, ignoring")
		return nil
	}
	v := move(c.state)
	log.Info().Str("intent", name).Int("index", v.Index).Msg("Playlist step")
	err := c.playCurrentLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// playCurrentLocked loads and plays the current track. The previous
// locator is released before the sink sees the new one.
func (c *Controller) playCurrentLocked() error {
	track, ok := c.state.Current()
	if !ok {
		return nil
	}

	locator, release, err := track.Source.Locate(c.minter)
	if err != nil {
		return fmt.Errorf("locate %q: %w", track.Title, err)
	}
	if c.release != nil {
		c.release()
	}
	c.release = release
	c.nowPlaying = &track

	log.Info().
		Str("title", track.Title).
		Str("album", track.Album).
		Str("source", string(track.Kind())).
		Msg("Playing track")

	c.loads++
	if err := c.sink.Load(locator); err != nil {
		return fmt.Errorf("load %q: %w", track.Title, err)
	}
	if err := c.sink.Play(); err != nil {
		return fmt.Errorf("play %q: %w", track.Title, err)
	}
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{View: c.state.View()}
	if c.nowPlaying != nil {
		t := *c.nowPlaying
		snap.NowPlaying = &t
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	c.obsMu.RLock()
	observers := slices.Clone(c.observers)
	c.obsMu.RUnlock()

	for _, fn := range observers {
		fn(snap)
	}
}
