package catalog_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

type stubFile struct {
	path      string
	mediaType string
}

func (f stubFile) Path() string       { return f.path }
func (f stubFile) MediaType() string  { return f.mediaType }
func (f stubFile) ModTime() time.Time { return time.Time{} }
func (f stubFile) Open() (io.ReadSeekCloser, error) {
	return nil, errors.New("stub")
}

func TestFromManifestFlattensAlbums(t *testing.T) {
	albums := []catalog.AlbumManifest{
		{Name: "A", Tracks: []catalog.TrackManifest{{Title: "t1", URL: "u1"}, {Title: "t2", URL: "u2"}}},
		{Name: "B", Tracks: []catalog.TrackManifest{{Title: "t3", URL: "u3"}}},
	}

	tracks, err := catalog.FromManifest(albums)
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}

	want := []struct{ title, album, url string }{
		{"t1", "A", "u1"},
		{"t2", "A", "u2"},
		{"t3", "B", "u3"},
	}
	if len(tracks) != len(want) {
		t.Fatalf("expected %d tracks, got %d", len(want), len(tracks))
	}
	for i, w := range want {
		if tracks[i].Title != w.title || tracks[i].Album != w.album {
			t.Errorf("track %d = %s/%s, want %s/%s", i, tracks[i].Album, tracks[i].Title, w.album, w.title)
		}
		src, ok := tracks[i].Source.(catalog.RemoteSource)
		if !ok {
			t.Fatalf("track %d source = %T, want RemoteSource", i, tracks[i].Source)
		}
		if src.URL != w.url {
			t.Errorf("track %d url = %q, want %q", i, src.URL, w.url)
		}
		if tracks[i].ID == "" {
			t.Errorf("track %d has no ID", i)
		}
	}
}

func TestFromManifestEmpty(t *testing.T) {
	tests := []struct {
		name   string
		albums []catalog.AlbumManifest
	}{
		{"nil", nil},
		{"no albums", []catalog.AlbumManifest{}},
		{"albums without tracks", []catalog.AlbumManifest{{Name: "A"}, {Name: "B", Tracks: []catalog.TrackManifest{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.FromManifest(tt.albums)
			if !errors.Is(err, catalog.ErrEmptyCatalog) {
				t.Errorf("expected ErrEmptyCatalog, got %v", err)
			}
		})
	}
}

func TestFromManifestNamelessAlbum(t *testing.T) {
	tracks, err := catalog.FromManifest([]catalog.AlbumManifest{
		{Tracks: []catalog.TrackManifest{{Title: "t", URL: "u"}}},
	})
	if err != nil {
		t.Fatalf("FromManifest failed: %v", err)
	}
	if tracks[0].Album != catalog.UnknownAlbum {
		t.Errorf("album = %q, want %q", tracks[0].Album, catalog.UnknownAlbum)
	}
}

func TestAlbumFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Album1/song1.mp3", "Album1"},
		{"Music/Album2/song.mp3", "Album2"},
		{`Music\Album3\song.mp3`, "Album3"},
		{`mixed/Album4\song.mp3`, "Album4"},
		{"/srv/music/Live/track.flac", "Live"},
		{"song.mp3", catalog.UnknownAlbum},
		{"/song.mp3", catalog.UnknownAlbum},
		{"", catalog.UnknownAlbum},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := catalog.AlbumFromPath(tt.path); got != tt.want {
				t.Errorf("AlbumFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestTitleFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Album1/song1.mp3", "song1"},
		{`Album\01 - Intro.flac`, "01 - Intro"},
		{"noext", "noext"},
		{"Album/.hidden", ".hidden"},
		{"Album/archive.tar.gz", "archive.tar"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := catalog.TitleFromPath(tt.path); got != tt.want {
				t.Errorf("TitleFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsAudio(t *testing.T) {
	tests := []struct {
		name string
		file stubFile
		want bool
	}{
		{"declared audio", stubFile{path: "x.bin", mediaType: "audio/mpeg"}, true},
		{"declared upper case", stubFile{path: "x", mediaType: "Audio/FLAC"}, true},
		{"declared text wins over extension", stubFile{path: "x.mp3", mediaType: "text/plain"}, false},
		{"mp3 by extension", stubFile{path: "a/b.mp3"}, true},
		{"FLAC by extension", stubFile{path: "a/b.FLAC"}, true},
		{"text by extension", stubFile{path: "a/notes.txt"}, false},
		{"no extension", stubFile{path: "a/README"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catalog.IsAudio(tt.file); got != tt.want {
				t.Errorf("IsAudio(%+v) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestFromLocalFilesFiltersNonAudio(t *testing.T) {
	files := []catalog.LocalFile{
		stubFile{path: "Album1/readme.txt", mediaType: "text/plain"},
		stubFile{path: "Album1/song1.mp3", mediaType: "audio/mpeg"},
		stubFile{path: "Album1/cover.jpg"},
		stubFile{path: "Album1/song2.mp3"},
	}

	tracks := catalog.FromLocalFiles(files)
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "song1" || tracks[1].Title != "song2" {
		t.Errorf("titles = %q, %q; want song1, song2", tracks[0].Title, tracks[1].Title)
	}
	for _, tr := range tracks {
		if tr.Album != "Album1" {
			t.Errorf("album = %q, want Album1", tr.Album)
		}
		if tr.Kind() != catalog.SourceLocal {
			t.Errorf("kind = %q, want local", tr.Kind())
		}
	}
}

func TestFromLocalFilesEmpty(t *testing.T) {
	tracks := catalog.FromLocalFiles(nil)
	if tracks == nil || len(tracks) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", tracks)
	}
}

type fakeMinter struct {
	minted   []string
	released []string
}

func (m *fakeMinter) Mint(f catalog.LocalFile) (string, func(), error) {
	loc := "handle:" + f.Path()
	m.minted = append(m.minted, loc)
	return loc, func() { m.released = append(m.released, loc) }, nil
}

func TestSourceLocate(t *testing.T) {
	m := &fakeMinter{}

	loc, release, err := catalog.RemoteSource{URL: "http://x/a.mp3"}.Locate(m)
	if err != nil || loc != "http://x/a.mp3" {
		t.Fatalf("remote Locate = %q, %v", loc, err)
	}
	release()
	if len(m.minted) != 0 {
		t.Error("remote source should not mint a handle")
	}

	loc, release, err = catalog.LocalSource{File: stubFile{path: "A/b.mp3"}}.Locate(m)
	if err != nil {
		t.Fatalf("local Locate failed: %v", err)
	}
	if !strings.HasPrefix(loc, "handle:") {
		t.Errorf("local locator = %q, want minted handle", loc)
	}
	release()
	if len(m.released) != 1 {
		t.Errorf("expected 1 release, got %d", len(m.released))
	}

	if _, _, err := (catalog.LocalSource{File: stubFile{path: "x.mp3"}}).Locate(nil); !errors.Is(err, catalog.ErrNoMinter) {
		t.Errorf("expected ErrNoMinter, got %v", err)
	}
}

func TestTrackToJSONHidesHandle(t *testing.T) {
	tr := catalog.Track{ID: "1", Title: "t", Album: "a", Source: catalog.LocalSource{File: stubFile{path: "/secret/a/t.mp3"}}}
	m := tr.ToJSON()

	if m["source"] != "local" {
		t.Errorf("source = %v, want local", m["source"])
	}
	for k, v := range m {
		if s, ok := v.(string); ok && strings.Contains(s, "secret") {
			t.Errorf("field %q leaks file path: %q", k, s)
		}
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&catalog.TransportError{Op: "fetch", URL: "http://x", Err: inner})

	if !catalog.IsTransport(err) {
		t.Error("IsTransport should be true")
	}
	if !errors.Is(err, inner) {
		t.Error("TransportError should unwrap to its cause")
	}
	if catalog.IsTransport(catalog.ErrEmptyCatalog) {
		t.Error("ErrEmptyCatalog is not a transport error")
	}

	withStatus := &catalog.TransportError{Op: "fetch", URL: "http://x", StatusCode: 503}
	if !strings.Contains(withStatus.Error(), "503") {
		t.Errorf("Error() = %q, should mention the status code", withStatus.Error())
	}
}
