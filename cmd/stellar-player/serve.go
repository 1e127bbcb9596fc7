package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-player/internal/config"
	"github.com/edumarques81/stellar-player/internal/domain/library"
	"github.com/edumarques81/stellar-player/internal/domain/player"
	"github.com/edumarques81/stellar-player/internal/infra/localmedia"
	"github.com/edumarques81/stellar-player/internal/infra/manifest"
	"github.com/edumarques81/stellar-player/internal/infra/mpd"
	"github.com/edumarques81/stellar-player/internal/infra/shellcache"
	"github.com/edumarques81/stellar-player/internal/infra/speaker"
	"github.com/edumarques81/stellar-player/internal/infra/watch"
	"github.com/edumarques81/stellar-player/internal/transport/rest"
	"github.com/edumarques81/stellar-player/internal/transport/socketio"
	"github.com/edumarques81/stellar-player/internal/version"
)

var serveFlags = flagKeys{
	"port":         "port",
	"static":       "static_dir",
	"data-dir":     "data_dir",
	"public-url":   "public_url",
	"debug":        "debug",
	"log-file":     "log_file",
	"sink":         "sink",
	"max-remote":   "max_remote_clients",
	"watch":        "watch_dirs",
	"manifest":     "manifest.url",
	"mpd-host":     "mpd.host",
	"mpd-port":     "mpd.port",
	"mpd-password": "mpd.password",
}

func newServeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and Socket.io server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd, serveFlags)
			if err != nil {
				return err
			}
			// --no-cache is the negation of shell_cache.enabled.
			if cmd.Flags().Changed("no-cache") {
				noCache, _ := cmd.Flags().GetBool("no-cache")
				cfg.ShellCache.Enabled = !noCache
			}

			closer := setupLogging(cfg.Debug, cfg.LogFile)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.Int("port", d.Port, "HTTP server port")
	f.String("static", "", "Directory to serve the UI and library.json from")
	f.String("data-dir", d.DataDir, "Directory for the shell cache database and uploads")
	f.String("public-url", "", "Externally reachable base URL (default http://localhost:<port>)")
	f.Bool("debug", false, "Enable debug logging")
	f.String("log-file", "", "Also write JSON logs to this rotating file")
	f.String("sink", d.Sink, "Playback sink: browser, mpd or speaker")
	f.Int("max-remote", d.MaxRemoteClients, "Maximum concurrent non-loopback clients (0 for no limit)")
	f.StringSlice("watch", nil, "Directory to watch for new audio files, repeatable")
	f.String("manifest", "", "Album manifest URL, http(s):// or s3://bucket/key")
	f.String("mpd-host", d.MPD.Host, "MPD host")
	f.Int("mpd-port", d.MPD.Port, "MPD port")
	f.String("mpd-password", "", "MPD password")
	f.Bool("no-cache", false, "Disable the offline app-shell cache")
	return cmd
}

// serve wires every component and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	printBanner(cfg)

	registry := localmedia.NewRegistry(cfg.BaseURL())

	sink, browser, checks, err := newSink(cfg)
	if err != nil {
		return err
	}
	controller := player.NewController(sink, registry)
	defer controller.Close()

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	lib := library.NewService(fetcher, controller)

	sopts := []socketio.Option{socketio.WithRemoteClientLimit(cfg.MaxRemoteClients)}
	if browser != nil {
		sopts = append(sopts, socketio.WithBrowserSink(browser))
	}
	socketServer, err := socketio.NewServer(controller, lib, sopts...)
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer socketServer.Close()

	static, cacheCheck, closeStatic, err := newStatic(cfg)
	if err != nil {
		return err
	}
	defer closeStatic()

	ropts := []rest.Option{rest.WithSpoolDir(filepath.Join(cfg.DataDir, "uploads"))}
	if cacheCheck != nil {
		ropts = append(ropts, rest.WithHealthCheck("shell_cache", cacheCheck))
	}
	for name, check := range checks {
		ropts = append(ropts, rest.WithHealthCheck(name, check))
	}
	api := rest.NewHandler(controller, lib, ropts...)

	startWatcher(ctx, cfg, lib)

	addr := ":" + strconv.Itoa(cfg.Port)
	// Bind before the first refresh: the manifest may be served by this
	// very server.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	if fetcher != nil {
		go func() {
			if err := lib.Refresh(ctx, false); err != nil {
				log.Error().Err(err).Msg("Initial library load failed")
			}
		}()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router(rest.Mounts{Socket: socketServer, Media: registry, Static: static}),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: media responses stream whole tracks.
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Str("public_url", cfg.BaseURL()).Msg("HTTP server listening")
	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("  Album Playlist Server")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Int("port", cfg.Port).
		Str("sink", cfg.Sink).
		Str("manifest", cfg.ManifestURL()).
		Str("static_dir", cfg.StaticDir).
		Strs("watch_dirs", cfg.WatchDirs).
		Int("max_remote_clients", cfg.MaxRemoteClients).
		Bool("shell_cache", cfg.ShellCache.Enabled && cfg.StaticDir != "").
		Msg("Configuration")
}

// newSink builds the configured playback sink. browser is non-nil only for
// the browser sink; checks are extra /health entries.
func newSink(cfg *config.Config) (player.Sink, *socketio.BrowserSink, map[string]func() error, error) {
	switch cfg.Sink {
	case config.SinkMPD:
		client := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
		if err := client.Connect(); err != nil {
			return nil, nil, nil, fmt.Errorf("connect to MPD: %w", err)
		}
		events, err := client.Watch("player")
		if err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("watch MPD: %w", err)
		}
		log.Info().Str("addr", client.Addr()).Msg("MPD connection verified")
		return mpd.NewSink(client, events), nil, map[string]func() error{"mpd": client.Ping}, nil

	case config.SinkSpeaker:
		if !speaker.Available {
			log.Warn().Msg("This build has no sound card support; playback will fail")
		}
		return speaker.NewSink(nil), nil, nil, nil

	default:
		b := socketio.NewBrowserSink()
		return b, b, nil, nil
	}
}

// newFetcher returns nil when no manifest is configured.
func newFetcher(cfg *config.Config) (library.Fetcher, error) {
	url := cfg.ManifestURL()
	switch {
	case url == "":
		log.Info().Msg("No manifest configured; only local files can be added")
		return nil, nil
	case cfg.IsS3Manifest():
		f, err := manifest.NewS3Fetcher(url, manifest.S3Config{
			Endpoint:  cfg.Manifest.S3Endpoint,
			AccessKey: cfg.Manifest.S3AccessKey,
			SecretKey: cfg.Manifest.S3SecretKey,
			Region:    cfg.Manifest.S3Region,
			UseSSL:    cfg.Manifest.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		return f, nil
	default:
		return manifest.NewHTTPFetcher(url), nil
	}
}

// newStatic serves the UI bundle, behind the shell cache when enabled. The
// returned health check is nil unless the cache is in use.
func newStatic(cfg *config.Config) (http.Handler, func() error, func(), error) {
	if cfg.StaticDir == "" {
		return nil, nil, func() {}, nil
	}
	log.Info().Str("dir", cfg.StaticDir).Msg("Serving static files")
	static := rest.Static(cfg.StaticDir)
	if !cfg.ShellCache.Enabled {
		return static, nil, func() {}, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db := shellcache.NewDB(filepath.Join(cfg.DataDir, "shell.db"))
	if err := db.Open(); err != nil {
		// go-sqlite3 needs cgo; the UI still works uncached.
		log.Warn().Err(err).Msg("Shell cache unavailable, serving static files uncached")
		return static, nil, func() {}, nil
	}
	cache := shellcache.NewHandler(db, cfg.ShellCache.Version, static)

	go func() {
		if err := cache.Install(); err != nil {
			log.Warn().Err(err).Str("cache", cache.Name()).Msg("App shell not cached")
			return
		}
		if err := cache.Activate(); err != nil {
			log.Warn().Err(err).Msg("Failed to purge old shell caches")
		}
	}()

	return cache, cache.Check, func() { db.Close() }, nil
}

func startWatcher(ctx context.Context, cfg *config.Config, lib *library.Service) {
	if len(cfg.WatchDirs) == 0 {
		return
	}
	w, err := watch.New(lib, cfg.WatchDirs)
	if err != nil {
		log.Error().Err(err).Strs("dirs", cfg.WatchDirs).Msg("Library watcher disabled")
		return
	}
	log.Info().Strs("dirs", cfg.WatchDirs).Msg("Watching for new audio files")
	go w.Run(ctx)
}
