// Package playlist holds the session's active song list: the catalog
// filtered by album, optionally shuffled, and a current position into it.
package playlist

import (
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// View is the result of a transition, consumed by whatever renders the
// song list.
type View struct {
	Tracks   []catalog.Track
	Index    int
	Filter   string
	Shuffled bool
	Albums   []string
}

// Current returns the track at Index, if any.
func (v View) Current() (catalog.Track, bool) {
	if v.Index < 0 || v.Index >= len(v.Tracks) {
		return catalog.Track{}, false
	}
	return v.Tracks[v.Index], true
}

// ToJSON returns the view as a map suitable for pushing to clients.
func (v View) ToJSON() map[string]interface{} {
	tracks := make([]map[string]interface{}, len(v.Tracks))
	for i, t := range v.Tracks {
		tracks[i] = t.ToJSON()
	}

	m := map[string]interface{}{
		"tracks":   tracks,
		"index":    v.Index,
		"filter":   v.Filter,
		"shuffled": v.Shuffled,
		"albums":   v.Albums,
	}
	if len(v.Tracks) == 0 {
		m["message"] = "No songs found in this album."
	}
	return m
}

// Option configures a State.
type Option func(*State)

// WithRand sets the random source used for shuffling.
func WithRand(r *rand.Rand) Option {
	return func(s *State) { s.rng = r }
}

// State is the playlist state machine. It is not safe for concurrent use;
// the owning controller serializes access.
type State struct {
	catalog  []catalog.Track
	filter   string
	shuffled bool
	active   []catalog.Track
	index    int
	rng      *rand.Rand
}

// New returns an empty state with the "all" filter and shuffle off.
func New(opts ...Option) *State {
	s := &State{filter: catalog.AllAlbums}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCatalog replaces the catalog and recomputes the active list. A filter
// naming an album that no longer exists falls back to "all".
func (s *State) SetCatalog(tracks []catalog.Track) View {
	s.catalog = append([]catalog.Track(nil), tracks...)
	if s.filter != catalog.AllAlbums && !lo.ContainsBy(s.catalog, func(t catalog.Track) bool {
		return t.Album == s.filter
	}) {
		s.filter = catalog.AllAlbums
	}
	s.recompute()
	return s.View()
}

// Catalog returns a copy of the full catalog in insertion order.
func (s *State) Catalog() []catalog.Track {
	return append([]catalog.Track(nil), s.catalog...)
}

// SetFilter restricts the active list to one album, or every album for
// "all". An unknown album yields an empty list.
func (s *State) SetFilter(filter string) View {
	s.filter = filter
	s.recompute()
	return s.View()
}

// SetShuffled turns shuffle on (fresh permutation) or off (catalog order).
func (s *State) SetShuffled(on bool) View {
	s.shuffled = on
	s.recompute()
	return s.View()
}

// SetIndex moves to i. Out of range is a no-op reported as false.
func (s *State) SetIndex(i int) (View, bool) {
	if i < 0 || i >= len(s.active) {
		return s.View(), false
	}
	s.index = i
	return s.View(), true
}

// Advance moves forward one position, wrapping past the end.
func (s *State) Advance() View {
	if n := len(s.active); n > 0 {
		s.index = (s.index + 1) % n
	}
	return s.View()
}

// Retreat moves back one position, wrapping before the start.
func (s *State) Retreat() View {
	if n := len(s.active); n > 0 {
		if s.index == 0 {
			s.index = n - 1
		} else {
			s.index--
		}
	}
	return s.View()
}

// TrackEnded applies the natural end-of-track policy: step to the next
// position, or back to the head once the last position has finished.
func (s *State) TrackEnded() View {
	if n := len(s.active); n > 0 {
		if s.index < n-1 {
			s.index++
		} else {
			s.index = 0
		}
	}
	return s.View()
}

// Current returns the track at the current position, if any.
func (s *State) Current() (catalog.Track, bool) {
	if s.index < 0 || s.index >= len(s.active) {
		return catalog.Track{}, false
	}
	return s.active[s.index], true
}

// Len returns the length of the active list.
func (s *State) Len() int { return len(s.active) }

// Filter returns the current album filter.
func (s *State) Filter() string { return s.filter }

// Shuffled reports whether the active list is permuted.
func (s *State) Shuffled() bool { return s.shuffled }

// Albums returns the distinct albums in catalog order.
func (s *State) Albums() []string {
	return lo.Uniq(lo.Map(s.catalog, func(t catalog.Track, _ int) string {
		return t.Album
	}))
}

// View returns a snapshot of the current state.
func (s *State) View() View {
	return View{
		Tracks:   append([]catalog.Track(nil), s.active...),
		Index:    s.index,
		Filter:   s.filter,
		Shuffled: s.shuffled,
		Albums:   s.Albums(),
	}
}

// recompute rebuilds the active list from the catalog and resets the
// position. Shuffling draws a fresh permutation every time.
func (s *State) recompute() {
	s.active = Filter(s.catalog, s.filter)
	if s.shuffled {
		Shuffle(s.active, s.rng)
	}
	s.index = 0
}

// Filter returns the tracks of album in order, or a copy of every track
// for "all".
func Filter(tracks []catalog.Track, album string) []catalog.Track {
	if album == catalog.AllAlbums {
		return append(make([]catalog.Track, 0, len(tracks)), tracks...)
	}
	return lo.Filter(tracks, func(t catalog.Track, _ int) bool {
		return t.Album == album
	})
}
