// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/domain/library"
	"github.com/edumarques81/stellar-player/internal/domain/player"
)

// DefaultDebounceWindow is how long playlist broadcasts wait for a burst of
// transitions to settle.
const DefaultDebounceWindow = 50 * time.Millisecond

// Option configures a Server.
type Option func(*Server)

// WithBrowserSink routes trackEnded reports to b and replays its current
// load to clients that connect mid-track.
func WithBrowserSink(b *BrowserSink) Option {
	return func(s *Server) { s.browser = b }
}

// WithRemoteClientLimit caps concurrent non-loopback clients.
func WithRemoteClientLimit(n int) Option {
	return func(s *Server) { s.limiter = NewClientLimiter(n) }
}

// WithDebounceWindow overrides DefaultDebounceWindow.
func WithDebounceWindow(d time.Duration) Option {
	return func(s *Server) { s.window = d }
}

// Server handles Socket.io connections and events.
type Server struct {
	io         *socket.Server
	controller *player.Controller
	library    *library.Service
	browser    *BrowserSink
	limiter    *ClientLimiter
	window     time.Duration
	debouncer  *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*socket.Socket
	events  map[string]func(clientID string, args ...any)
}

// NewServer creates a new Socket.io server.
func NewServer(controller *player.Controller, lib *library.Service, opts ...Option) (*Server, error) {
	// Configure Socket.io server options
	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:         socket.NewServer(nil, sopts),
		controller: controller,
		library:    lib,
		limiter:    NewClientLimiter(0),
		window:     DefaultDebounceWindow,
		clients:    make(map[string]*socket.Socket),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.debouncer = NewDebouncer(s.window)
	s.debouncer.Handle("playlist", s.BroadcastPlaylist)
	controller.OnChange(func(player.Snapshot) { s.debouncer.Trigger("playlist") })
	lib.OnStatus(func(st library.StatusInfo) { s.broadcast("pushStatus", st.ToJSON()) })

	if s.browser != nil {
		s.browser.Attach(s.broadcast)
	}

	s.registerEvents()
	s.setupHandlers()

	return s, nil
}

// registerEvents builds the client event table.
func (s *Server) registerEvents() {
	s.events = map[string]func(clientID string, args ...any){
		"selectTrack": func(id string, args ...any) {
			i, ok := intArg(args)
			if !ok {
				log.Warn().Str("id", id).Interface("data", args).Msg("selectTrack without index")
				return
			}
			s.intent("SelectTrack", func() error { return s.controller.SelectTrack(i) })
		},
		"next": func(string, ...any) {
			s.intent("Next", s.controller.Next)
		},
		"prev": func(string, ...any) {
			s.intent("Previous", s.controller.Previous)
		},
		"toggleShuffle": func(string, ...any) {
			s.intent("ToggleShuffle", s.controller.ToggleShuffle)
		},
		"setFilter": func(id string, args ...any) {
			album, ok := stringArg(args)
			if !ok {
				album = catalog.AllAlbums
			}
			s.controller.ChangeFilter(album)
		},
		"refresh": func(string, ...any) {
			go func() {
				if err := s.library.Refresh(s.ctx, true); err != nil {
					log.Error().Err(err).Msg("Library refresh failed")
				}
			}()
		},
		"addLocalPaths": func(id string, args ...any) {
			m := mapArg(args)
			paths := stringsField(m, "paths")
			if len(paths) == 0 {
				log.Warn().Str("id", id).Msg("addLocalPaths without paths")
				return
			}
			recursive, _ := m["recursive"].(bool)
			go s.addLocal(paths, recursive)
		},
		"trackEnded": func(id string, args ...any) {
			if s.browser == nil {
				log.Debug().Str("id", id).Msg("trackEnded ignored: browser sink not in use")
				return
			}
			seq, ok := intField(mapArg(args), "seq")
			if !ok {
				seq, ok = intArg(args)
			}
			if ok {
				s.browser.Ended(seq)
			}
		},
	}
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.Admit(clientID, addr); evicted != "" {
			s.evict(evicted)
		}

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushInitial(client)
		}()

		// Handle disconnect
		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Release(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushInitial(client)
		})

		for name, handler := range s.events {
			client.On(name, func(args ...any) {
				log.Debug().Str("id", clientID).Interface("data", args).Msg(name)
				handler(clientID, args...)
			})
		}
	})
}

// dispatch runs the handler for a client event.
func (s *Server) dispatch(clientID, event string, args ...any) {
	if h, ok := s.events[event]; ok {
		h(clientID, args...)
	}
}

func (s *Server) intent(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Error().Err(err).Str("intent", name).Msg("Playback intent failed")
	}
}

func (s *Server) addLocal(paths []string, recursive bool) {
	payload, err := catalog.PathsPayload(paths, recursive)
	if err != nil {
		log.Error().Err(err).Msg("Invalid local paths")
		return
	}
	n, err := s.library.AddLocal(s.ctx, payload)
	if err != nil {
		log.Error().Err(err).Msg("Adding local files failed")
		return
	}
	log.Info().Int("tracks", n).Strs("paths", paths).Msg("Local files added")
}

// pushInitial sends a client everything it needs to render and play.
func (s *Server) pushInitial(client *socket.Socket) {
	client.Emit("pushPlaylist", s.controller.Snapshot().ToJSON())
	client.Emit("pushStatus", s.library.Status().ToJSON())

	if s.browser == nil {
		return
	}
	load, play := s.browser.Current()
	if load != nil {
		client.Emit("pushLoad", load)
	}
	if play != nil {
		client.Emit("pushPlay", play)
	}
}

func (s *Server) evict(clientID string) {
	s.mu.RLock()
	client := s.clients[clientID]
	s.mu.RUnlock()

	if client == nil {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest remote client")
	client.Emit("pushEvicted", map[string]interface{}{"reason": "too many remote clients"})
	client.Disconnect(true)
}

func (s *Server) broadcast(event string, payload any) {
	s.io.Emit(event, payload)
}

// BroadcastPlaylist sends the playlist to all connected clients.
func (s *Server) BroadcastPlaylist() {
	snap := s.controller.Snapshot().ToJSON()
	s.broadcast("pushPlaylist", snap)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(snap)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("playlist", data).Int("clients", clientCount).Msg("Broadcast playlist")
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending broadcasts and ingestions and closes the Socket.io
// server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.cancel()
	s.io.Close(nil)
	return nil
}

func mapArg(args []any) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]interface{})
	return m
}

// intArg accepts {value: n} or a bare number.
func intArg(args []any) (int, bool) {
	if n, ok := intField(mapArg(args), "value"); ok {
		return n, true
	}
	if len(args) > 0 {
		if v, ok := args[0].(float64); ok {
			return int(v), true
		}
	}
	return 0, false
}

// stringArg accepts {value: s} or a bare string.
func stringArg(args []any) (string, bool) {
	if v, ok := mapArg(args)["value"].(string); ok {
		return v, true
	}
	if len(args) > 0 {
		if v, ok := args[0].(string); ok {
			return v, true
		}
	}
	return "", false
}

func intField(m map[string]interface{}, key string) (int, bool) {
	v, ok := m[key].(float64)
	return int(v), ok
}

func stringsField(m map[string]interface{}, key string) []string {
	raw, _ := m[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
