// Package localmedia mints session-scoped HTTP handles for local files so a
// playback sink can fetch them by URL, and serves those handles.
package localmedia

import (
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// PathPrefix is the URL path under which handles are served.
const PathPrefix = "/media/"

// Registry maps handle ids to local files. It is safe for concurrent use.
type Registry struct {
	publicBase string

	mu      sync.RWMutex
	handles map[string]catalog.LocalFile
}

// NewRegistry creates a registry whose handles are rooted at publicBase
// (for example "http://127.0.0.1:3000"). An empty base yields
// host-relative handles.
func NewRegistry(publicBase string) *Registry {
	return &Registry{
		publicBase: strings.TrimRight(publicBase, "/"),
		handles:    make(map[string]catalog.LocalFile),
	}
}

// Mint registers f under a fresh id. The returned release revokes the
// handle; calling it more than once is harmless.
func (r *Registry) Mint(f catalog.LocalFile) (string, func(), error) {
	id := uuid.New().String()

	r.mu.Lock()
	r.handles[id] = f
	r.mu.Unlock()

	log.Debug().Str("id", id).Str("path", f.Path()).Msg("Minted media handle")

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handles, id)
			r.mu.Unlock()
			log.Debug().Str("id", id).Msg("Released media handle")
		})
	}
	return r.publicBase + PathPrefix + id, release, nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Lookup returns the file registered under id.
func (r *Registry) Lookup(id string) (catalog.LocalFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.handles[id]
	return f, ok
}

// ServeHTTP serves the file behind /media/<id> with range support. Unknown
// or revoked ids are 404.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, PathPrefix)
	f, ok := r.Lookup(id)
	if !ok {
		http.NotFound(w, req)
		return
	}

	rs, err := f.Open()
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to open media handle")
		http.Error(w, "media unavailable", http.StatusGone)
		return
	}
	defer rs.Close()

	if mt := catalog.MediaTypeOf(f); mt != "" {
		w.Header().Set("Content-Type", mt)
	}
	w.Header().Set("Cache-Control", "no-store")
	name := path.Base(strings.ReplaceAll(f.Path(), `\`, "/"))
	http.ServeContent(w, req, name, f.ModTime(), rs)
}
