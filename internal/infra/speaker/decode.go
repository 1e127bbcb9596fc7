// Package speaker plays tracks on the host sound card with beep.
package speaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for locators no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

type decodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3": mp3.Decode,
	".flac": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(rc)
	},
	".wav": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return wav.Decode(rc)
	},
	".ogg": vorbis.Decode,
	".oga": vorbis.Decode,
}

var mediaTypeExt = map[string]string{
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/ogg":    ".ogg",
	"audio/vorbis": ".ogg",
}

// decoderFor picks a decoder from the name's extension, then from the
// media type.
func decoderFor(name, mediaType string) (decodeFunc, error) {
	if d, ok := decoders[strings.ToLower(path.Ext(name))]; ok {
		return d, nil
	}
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		if d, ok := decoders[mediaTypeExt[mt]]; ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Open fetches and decodes locator: an http(s) URL or a file path.
// Remote sources are read fully into memory so the stream stays seekable.
func Open(ctx context.Context, client *http.Client, locator string) (beep.StreamSeekCloser, beep.Format, error) {
	u, err := url.Parse(locator)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return openRemote(ctx, client, u)
	}

	f, err := os.Open(locator)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open %s: %w", locator, err)
	}
	decode, err := decoderFor(locator, "")
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	s, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", locator, err)
	}
	return s, format, nil
}

func openRemote(ctx context.Context, client *http.Client, u *url.URL) (beep.StreamSeekCloser, beep.Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, beep.Format{}, fmt.Errorf("fetch %s: HTTP %d", u, resp.StatusCode)
	}

	decode, err := decoderFor(u.Path, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, beep.Format{}, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("read %s: %w", u, err)
	}

	s, format, err := decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", u, err)
	}
	return s, format, nil
}

// nopCloser keeps the reader seekable while satisfying io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
