// Package catalog turns remote manifests and local file sets into a flat,
// ordered list of playable tracks.
package catalog

import (
	"io"
	"time"
)

const (
	// AllAlbums is the filter value that matches every track.
	AllAlbums = "all"

	// UnknownAlbum is used when no album can be derived from a track's origin.
	UnknownAlbum = "Unknown"
)

// SourceKind identifies how a track is played.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Track is one playable audio item.
type Track struct {
	ID     string
	Title  string
	Album  string
	Source Source
}

// Kind returns the kind of the track's source, or "" when it has none.
func (t Track) Kind() SourceKind {
	if t.Source == nil {
		return ""
	}
	return t.Source.Kind()
}

// ToJSON returns the track as a map suitable for pushing to clients.
// Local handles are never exposed; clients only see the kind.
func (t Track) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":     t.ID,
		"title":  t.Title,
		"album":  t.Album,
		"source": string(t.Kind()),
	}
}

// HandleMinter turns a local file into a session-scoped playable locator.
type HandleMinter interface {
	// Mint registers f and returns its locator. release revokes it and
	// must be called once the locator is superseded.
	Mint(f LocalFile) (locator string, release func(), err error)
}

// Source is the origin of a track's audio.
type Source interface {
	Kind() SourceKind
	// Locate produces a locator the playback sink can load.
	Locate(m HandleMinter) (locator string, release func(), err error)
}

// RemoteSource is audio addressed by URL.
type RemoteSource struct {
	URL string
}

func (RemoteSource) Kind() SourceKind { return SourceRemote }

// Locate returns the URL itself; there is nothing to release.
func (s RemoteSource) Locate(HandleMinter) (string, func(), error) {
	return s.URL, func() {}, nil
}

// LocalSource is audio backed by a local file handle.
type LocalSource struct {
	File LocalFile
}

func (LocalSource) Kind() SourceKind { return SourceLocal }

// Locate mints a fresh handle for the file.
func (s LocalSource) Locate(m HandleMinter) (string, func(), error) {
	if m == nil {
		return "", nil, ErrNoMinter
	}
	return m.Mint(s.File)
}

// LocalFile is a file-like object from drag-and-drop, directory traversal
// or manual selection.
type LocalFile interface {
	// Path is the file's path including its parent directories.
	// Either '/' or '\' may separate segments.
	Path() string
	// MediaType is the declared media type, "" when unknown.
	MediaType() string
	ModTime() time.Time
	Open() (io.ReadSeekCloser, error)
}

// AlbumManifest is one album entry of the remote library manifest.
type AlbumManifest struct {
	Name   string          `json:"name"`
	Tracks []TrackManifest `json:"tracks"`
}

// TrackManifest is one track of an AlbumManifest.
type TrackManifest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
