// Package library orchestrates catalog ingestion from the remote manifest
// and from local files, and owns the single status area shown to users.
package library

import (
	"context"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// State is the ingestion status.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateEmpty   State = "empty"
	StateError   State = "error"
	StateReady   State = "ready"
)

// Status messages shown in the status area.
const (
	MsgLoading     = "Loading music library..."
	MsgEmpty       = "No music albums found in the library."
	MsgErrorPrefix = "Error loading music library: "
)

// StatusInfo is the content of the status area.
type StatusInfo struct {
	State   State  `json:"state"`
	Message string `json:"message"`
	Tracks  int    `json:"tracks"`
}

// ToJSON returns the status in the format pushed to clients.
func (s StatusInfo) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"state":   string(s.State),
		"message": s.Message,
		"tracks":  s.Tracks,
	}
}

// Fetcher retrieves the remote album manifest. bust asks the fetcher to
// bypass intermediate caches.
type Fetcher interface {
	Fetch(ctx context.Context, bust bool) ([]catalog.AlbumManifest, error)
}

// CatalogTarget receives normalized tracks.
type CatalogTarget interface {
	ReplaceCatalog(tracks []catalog.Track)
	AppendCatalog(tracks []catalog.Track)
	CatalogSize() int
}
