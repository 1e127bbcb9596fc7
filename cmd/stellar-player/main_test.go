package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-player/internal/config"
	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/version"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Contains(t, run(t, "version"), version.Name)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(run(t, "version", "--json")), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestGenerateCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Blue"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Blue", "01 Intro.mp3"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Blue", "cover.jpg"), nil, 0o644))
	out := filepath.Join(t.TempDir(), "library.json")

	msg := run(t, "generate", root, "--out", out, "--base-url", "https://cdn.example.com/")
	assert.Contains(t, msg, "1 albums, 1 tracks")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var albums []catalog.AlbumManifest
	require.NoError(t, json.Unmarshal(data, &albums))
	require.Len(t, albums, 1)
	assert.Equal(t, "https://cdn.example.com/Blue/01 Intro.mp3", albums[0].Tracks[0].URL)
}

// loadWith parses args on a serve command and loads the config it yields.
func loadWith(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	g := &globalFlags{configFiles: []string{}, envFile: filepath.Join(t.TempDir(), "none.env")}
	cmd := newServeCmd(g)
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	require.NoError(t, cmd.ParseFlags(args))
	return g.load(cmd, serveFlags)
}

func TestServeFlagsOverrideOnlyWhenSet(t *testing.T) {
	t.Setenv("STELLAR_PORT", "4100")
	t.Setenv("STELLAR_SINK", "mpd")

	cfg, err := loadWith(t, "--sink", "speaker", "--watch", "/a", "--watch", "/b", "--debug")
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Port, "unset flags keep the environment value")
	assert.Equal(t, config.SinkSpeaker, cfg.Sink)
	assert.Equal(t, []string{"/a", "/b"}, cfg.WatchDirs)
	assert.True(t, cfg.Debug)
}

func TestServeFlagsValidated(t *testing.T) {
	_, err := loadWith(t, "--sink", "alsa")
	assert.Error(t, err)

	_, err = loadWith(t, "--manifest", "ftp://example.com/library.json")
	assert.Error(t, err)
}

func TestServeFlagsMapToKnownKeys(t *testing.T) {
	known := config.Keys()
	for flag, key := range serveFlags {
		assert.Contains(t, known, key, "flag --%s", flag)
	}
}

func TestRootAcceptsServeFlags(t *testing.T) {
	root := newRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--port", "4242", "--sink", "mpd"}))

	g := &globalFlags{configFiles: []string{}, envFile: filepath.Join(t.TempDir(), "none.env")}
	cfg, err := g.load(root, serveFlags)
	require.NoError(t, err)
	assert.Equal(t, 4242, cfg.Port)
	assert.Equal(t, config.SinkMPD, cfg.Sink)
}
