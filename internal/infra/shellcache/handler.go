package shellcache

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultCacheName is the cache the shell is stored under unless configured
// otherwise. Changing it invalidates every previously stored shell.
const DefaultCacheName = "musicplayer-app-shell-v1"

// AppShell lists the paths served cache-first. Everything else, including
// the manifest and audio files, always goes upstream.
var AppShell = []string{
	"/",
	"/index.html",
	"/app.js",
	"/style.css",
	"/manifest.json",
	"/icon-192.png",
	"/icon-512.png",
}

// Handler serves the app shell cache-first in front of an upstream handler.
type Handler struct {
	db       *DB
	name     string
	upstream http.Handler
	shell    map[string]bool
}

// NewHandler wraps upstream. An empty name uses DefaultCacheName.
func NewHandler(db *DB, name string, upstream http.Handler) *Handler {
	if name == "" {
		name = DefaultCacheName
	}
	return &Handler{
		db:       db,
		name:     name,
		upstream: upstream,
		shell:    lo.SliceToMap(AppShell, func(p string) (string, bool) { return p, true }),
	}
}

// Name returns the active cache name.
func (h *Handler) Name() string { return h.name }

// Install fetches every shell asset from upstream and stores them under
// the active cache name. Nothing is stored unless every asset succeeds.
func (h *Handler) Install() error {
	entries := make([]Entry, 0, len(AppShell))
	var total int64

	for _, p := range AppShell {
		req, err := http.NewRequest(http.MethodGet, p, nil)
		if err != nil {
			return fmt.Errorf("build request for %s: %w", p, err)
		}
		rec := newRecorder()
		h.upstream.ServeHTTP(rec, req)
		if rec.status != http.StatusOK {
			return fmt.Errorf("install %s: upstream returned %d", p, rec.status)
		}
		entries = append(entries, rec.entry(p))
		total += int64(rec.body.Len())
	}

	if err := h.db.Put(h.name, entries...); err != nil {
		return fmt.Errorf("install shell: %w", err)
	}

	log.Info().
		Str("cache", h.name).
		Int("assets", len(entries)).
		Str("size", humanize.Bytes(uint64(total))).
		Msg("App shell installed")
	return nil
}

// Activate deletes every cache other than the active one.
func (h *Handler) Activate() error {
	names, err := h.db.CacheNames()
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	stale := lo.Without(names, h.name)
	if err := h.db.DeleteCaches(stale...); err != nil {
		return err
	}

	if len(stale) > 0 {
		log.Info().Strs("purged", stale).Str("cache", h.name).Msg("Stale shell caches removed")
	}

	stats, err := h.db.GetStats()
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}
	log.Info().
		Str("cache", h.name).
		Int("entries", stats.Entries).
		Str("size", humanize.Bytes(uint64(stats.Bytes))).
		Str("schema", stats.SchemaVersion).
		Msg("App shell cache active")
	return nil
}

// Check reports whether the store is usable. It backs the /health entry.
func (h *Handler) Check() error {
	_, err := h.db.GetStats()
	return err
}

// ServeHTTP answers shell requests from the cache when possible and falls
// back to upstream, storing successful upstream responses.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || !h.shell[r.URL.Path] {
		h.upstream.ServeHTTP(w, r)
		return
	}

	entry, err := h.db.Get(h.name, r.URL.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Shell cache lookup failed")
	}
	if entry != nil {
		log.Debug().Str("path", r.URL.Path).Str("size", humanize.Bytes(uint64(len(entry.Body)))).Msg("Shell cache hit")
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(entry.Body)))
		if !entry.StoredAt.IsZero() {
			w.Header().Set("Last-Modified", entry.StoredAt.UTC().Format(http.TimeFormat))
		}
		w.Header().Set("X-Shell-Cache", "hit")
		w.WriteHeader(entry.Status)
		_, _ = w.Write(entry.Body)
		return
	}

	rec := newRecorder()
	h.upstream.ServeHTTP(rec, r)
	rec.copyTo(w)

	if rec.status == http.StatusOK {
		if err := h.db.Put(h.name, rec.entry(r.URL.Path)); err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to store shell asset")
		}
	}
}

// recorder captures an upstream response.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) entry(path string) Entry {
	ct := r.header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(r.body.Bytes())
	}
	return Entry{
		Path:        path,
		Status:      r.status,
		ContentType: ct,
		Body:        bytes.Clone(r.body.Bytes()),
	}
}

func (r *recorder) copyTo(w http.ResponseWriter) {
	for k, v := range r.header {
		w.Header()[k] = v
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(r.body.Bytes())
}
