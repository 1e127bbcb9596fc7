package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// ErrNoManifest is returned by Refresh when no remote manifest is
// configured.
var ErrNoManifest = errors.New("no manifest source configured")

// Service runs catalog ingestion and tracks its status.
type Service struct {
	fetcher Fetcher
	target  CatalogTarget

	mu       sync.RWMutex
	status   StatusInfo
	watchers []func(StatusInfo)
}

// NewService creates an ingestion service. fetcher may be nil when only
// local ingestion is used.
func NewService(fetcher Fetcher, target CatalogTarget) *Service {
	return &Service{
		fetcher: fetcher,
		target:  target,
		status:  StatusInfo{State: StateIdle},
	}
}

// OnStatus registers fn to run on every status change.
func (s *Service) OnStatus(fn func(StatusInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Status returns the current status.
func (s *Service) Status() StatusInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Refresh fetches the remote manifest and replaces the catalog with it.
// On failure the previous catalog is kept and the status reports why.
// Overlapping refreshes are not cancelled; the last to finish wins.
func (s *Service) Refresh(ctx context.Context, bust bool) error {
	if s.fetcher == nil {
		return ErrNoManifest
	}

	s.setStatus(StatusInfo{State: StateLoading, Message: MsgLoading, Tracks: s.target.CatalogSize()})
	log.Info().Bool("bust", bust).Msg("Refreshing music library")

	albums, err := s.fetcher.Fetch(ctx, bust)
	if err != nil {
		return s.fail(err)
	}
	tracks, err := catalog.FromManifest(albums)
	if err != nil {
		return s.fail(err)
	}

	s.target.ReplaceCatalog(tracks)
	s.setStatus(StatusInfo{State: StateReady, Tracks: len(tracks)})
	log.Info().Int("albums", len(albums)).Int("tracks", len(tracks)).Msg("Music library loaded")
	return nil
}

// AddLocal collects every file of payload, keeps the audio ones and appends
// them to the catalog. It returns the number of tracks added; zero is not
// an error.
func (s *Service) AddLocal(ctx context.Context, payload catalog.Payload) (int, error) {
	files, err := payload.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("collect local files: %w", err)
	}

	tracks := catalog.FromLocalFiles(files)
	log.Info().
		Int("files", len(files)).
		Int("tracks", len(tracks)).
		Msg("Local files ingested")

	if len(tracks) > 0 {
		s.target.AppendCatalog(tracks)
	}
	if n := s.target.CatalogSize(); n > 0 {
		s.setStatus(StatusInfo{State: StateReady, Tracks: n})
	}
	return len(tracks), nil
}

func (s *Service) fail(err error) error {
	tracks := s.target.CatalogSize()
	if errors.Is(err, catalog.ErrEmptyCatalog) {
		log.Warn().Err(err).Msg("Music library is empty")
		s.setStatus(StatusInfo{State: StateEmpty, Message: MsgEmpty, Tracks: tracks})
		return err
	}

	log.Error().Err(err).Msg("Failed to load music library")
	s.setStatus(StatusInfo{State: StateError, Message: MsgErrorPrefix + err.Error(), Tracks: tracks})
	return err
}

func (s *Service) setStatus(st StatusInfo) {
	s.mu.Lock()
	s.status = st
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(st)
	}
}
