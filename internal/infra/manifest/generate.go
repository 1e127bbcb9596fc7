package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// FileName is the conventional manifest file name.
const FileName = "library.json"

// Generate builds a manifest from an albums directory: one album per
// sub-directory and one track per .mp3 file, both in name order. Track URLs
// are baseURL + album + "/" + file. Albums without tracks are left out.
func Generate(root, baseURL string) ([]catalog.AlbumManifest, error) {
	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read albums dir: %w", err)
	}

	albums := make([]catalog.AlbumManifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		files, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("album", e.Name()).Msg("Skipping unreadable album")
			continue
		}

		var tracks []catalog.TrackManifest
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".mp3") {
				continue
			}
			tracks = append(tracks, catalog.TrackManifest{
				Title: strings.TrimSuffix(name, filepath.Ext(name)),
				URL:   baseURL + e.Name() + "/" + name,
			})
		}
		if len(tracks) == 0 {
			continue
		}
		albums = append(albums, catalog.AlbumManifest{Name: e.Name(), Tracks: tracks})
	}

	return albums, nil
}

// Write encodes albums as indented JSON to path.
func Write(path string, albums []catalog.AlbumManifest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(albums); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
