package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// audioExtensions maps known audio extensions to their media type. Used
// when a file carries no declared media type.
var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
	".aiff": "audio/aiff",
}

// FromManifest flattens albums into one track per (album, track) pair,
// album-major then track-minor.
func FromManifest(albums []AlbumManifest) ([]Track, error) {
	if len(albums) == 0 {
		return nil, ErrEmptyCatalog
	}

	tracks := make([]Track, 0, len(albums))
	for _, album := range albums {
		name := album.Name
		if name == "" {
			name = UnknownAlbum
		}
		for _, t := range album.Tracks {
			tracks = append(tracks, Track{
				ID:     uuid.NewString(),
				Title:  t.Title,
				Album:  name,
				Source: RemoteSource{URL: t.URL},
			})
		}
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("%d albums without tracks: %w", len(albums), ErrEmptyCatalog)
	}
	return tracks, nil
}

// FromLocalFiles keeps the audio files and derives album and title from
// each file's path. It never fails; no audio yields an empty catalog.
func FromLocalFiles(files []LocalFile) []Track {
	audio := lo.Filter(files, func(f LocalFile, _ int) bool {
		return IsAudio(f)
	})

	return lo.Map(audio, func(f LocalFile, _ int) Track {
		return Track{
			ID:     uuid.NewString(),
			Title:  TitleFromPath(f.Path()),
			Album:  AlbumFromPath(f.Path()),
			Source: LocalSource{File: f},
		}
	})
}

// AlbumFromPath returns the immediate parent directory name of p, or
// UnknownAlbum when p has no parent segment.
func AlbumFromPath(p string) string {
	segments := splitPath(p)
	if len(segments) < 2 {
		return UnknownAlbum
	}
	return segments[len(segments)-2]
}

// TitleFromPath returns the file name of p without its extension.
func TitleFromPath(p string) string {
	name := splitLast(p)
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// IsAudio reports whether f is an audio file, by declared media type or,
// when none is declared, by extension.
func IsAudio(f LocalFile) bool {
	return strings.HasPrefix(MediaTypeOf(f), "audio/")
}

// MediaTypeOf returns f's declared media type, falling back to the type
// implied by its extension.
func MediaTypeOf(f LocalFile) string {
	return mediaTypeFor(f.MediaType(), f.Path())
}

func mediaTypeFor(declared, p string) string {
	if declared != "" {
		return strings.ToLower(declared)
	}
	return audioExtensions[strings.ToLower(path.Ext(splitLast(p)))]
}

// splitPath splits on either separator, dropping empty segments.
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

func splitLast(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
