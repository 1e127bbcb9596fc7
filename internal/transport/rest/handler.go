// Package rest serves the HTTP API next to the Socket.io endpoint: health
// and version, playlist intents and library ingestion.
package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/domain/library"
	"github.com/edumarques81/stellar-player/internal/domain/player"
	"github.com/edumarques81/stellar-player/internal/infra/localmedia"
	"github.com/edumarques81/stellar-player/internal/version"
)

// DefaultMaxUploadMemory is how much of a multipart upload is held in
// memory before parts spill to temporary files.
const DefaultMaxUploadMemory = 32 << 20

// Option configures a Handler.
type Option func(*Handler)

// WithSpoolDir sets where uploaded audio is copied. Each upload gets its own
// sub-directory.
func WithSpoolDir(dir string) Option {
	return func(h *Handler) { h.spoolDir = dir }
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check func() error) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// Handler serves the REST API.
type Handler struct {
	controller *player.Controller
	library    *library.Service
	spoolDir   string
	checks     map[string]func() error
}

// NewHandler creates the API handler.
func NewHandler(controller *player.Controller, lib *library.Service, opts ...Option) *Handler {
	h := &Handler{
		controller: controller,
		library:    lib,
		spoolDir:   filepath.Join("data", "uploads"),
		checks:     make(map[string]func() error),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mounts are the non-API handlers the router serves. Nil entries are not
// mounted.
type Mounts struct {
	Socket http.Handler
	Media  http.Handler
	Static http.Handler
}

// Router builds the full HTTP surface wrapped in CORS.
func (h *Handler) Router(m Mounts) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/version", h.version).Methods(http.MethodGet)
	api.HandleFunc("/playlist", h.playlist).Methods(http.MethodGet)
	api.HandleFunc("/library/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/library/upload", h.upload).Methods(http.MethodPost)
	api.HandleFunc("/library/local", h.addLocal).Methods(http.MethodPost)
	api.HandleFunc("/player/{action:select|next|prev|shuffle|filter}", h.player).Methods(http.MethodPost)

	if m.Socket != nil {
		r.PathPrefix("/socket.io/").Handler(m.Socket)
	}
	if m.Media != nil {
		r.PathPrefix(localmedia.PathPrefix).Handler(m.Media)
	}
	if m.Static != nil {
		r.PathPrefix("/").Handler(m.Static)
	}

	return CORS(r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(); err != nil {
			resp[name] = "error: " + err.Error()
			resp["status"] = "error"
			code = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "ok"
	}
	writeJSON(w, code, resp)
}

func (h *Handler) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (h *Handler) playlist(w http.ResponseWriter, r *http.Request) {
	resp := h.controller.Snapshot().ToJSON()
	resp["status"] = h.library.Status().ToJSON()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	bust := r.URL.Query().Get("cache") != "true"
	if err := h.library.Refresh(r.Context(), bust); err != nil {
		writeError(w, errorStatus(err), err, h.library.Status())
		return
	}
	writeJSON(w, http.StatusOK, h.library.Status().ToJSON())
}

type localRequest struct {
	Paths     []string `json:"paths"`
	Recursive bool     `json:"recursive"`
}

func (h *Handler) addLocal(w http.ResponseWriter, r *http.Request) {
	var req localRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		http.Error(w, "paths required", http.StatusBadRequest)
		return
	}

	payload, err := catalog.PathsPayload(req.Paths, req.Recursive)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, h.library.Status())
		return
	}
	h.ingest(w, r, payload)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(DefaultMaxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	items := uploadItems(r.MultipartForm)
	if len(items) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	spool := filepath.Join(h.spoolDir, uuid.NewString())
	logUpload(items, spool)
	h.ingest(w, r, catalog.DataTransferItemSet{Items: items, SpoolDir: spool})
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, payload catalog.Payload) {
	n, err := h.library.AddLocal(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, h.library.Status())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added":  n,
		"status": h.library.Status().ToJSON(),
	})
}

type playerRequest struct {
	Value *json.RawMessage `json:"value"`
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	// An empty body, chunked or not, means no value.
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch action {
	case "select":
		var i int
		if req.Value == nil || json.Unmarshal(*req.Value, &i) != nil {
			http.Error(w, "numeric value required", http.StatusBadRequest)
			return
		}
		err = h.controller.SelectTrack(i)
	case "next":
		err = h.controller.Next()
	case "prev":
		err = h.controller.Previous()
	case "shuffle":
		err = h.controller.ToggleShuffle()
	case "filter":
		album := catalog.AllAlbums
		if req.Value != nil {
			if json.Unmarshal(*req.Value, &album) != nil {
				http.Error(w, "string value required", http.StatusBadRequest)
				return
			}
		}
		h.controller.ChangeFilter(album)
	}

	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Playback intent failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot().ToJSON())
}

// errorStatus maps ingestion errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, library.ErrNoManifest):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity
	case catalog.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, err error, st library.StatusInfo) {
	writeJSON(w, code, map[string]interface{}{
		"error":  err.Error(),
		"status": st.ToJSON(),
	})
}
