// Package manifest fetches and generates the remote album manifest
// (library.json): a JSON array of albums, each with a name and tracks.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/version"
)

const (
	// DefaultTimeout for manifest requests.
	DefaultTimeout = 30 * time.Second

	// maxManifestSize caps the body read from the endpoint.
	maxManifestSize = 32 << 20
)

// HTTPFetcher loads the manifest with a single GET.
type HTTPFetcher struct {
	url        string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// HTTPOption is a functional option for configuring the fetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.httpClient = client
	}
}

// WithClock sets the clock used for cache-busting timestamps.
func WithClock(now func() time.Time) HTTPOption {
	return func(f *HTTPFetcher) {
		f.now = now
	}
}

// NewHTTPFetcher creates a fetcher for the manifest at rawURL.
func NewHTTPFetcher(rawURL string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		url:       rawURL,
		userAgent: version.Name + "/" + version.Version,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads and decodes the manifest. When bust is set a
// t=<unix millis> query parameter defeats intermediate caches.
func (f *HTTPFetcher) Fetch(ctx context.Context, bust bool) ([]catalog.AlbumManifest, error) {
	target, err := f.requestURL(bust)
	if err != nil {
		return nil, &catalog.TransportError{Op: "parse url", URL: f.url, Err: err}
	}

	log.Debug().Str("url", target).Bool("bust", bust).Msg("Fetching manifest")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &catalog.TransportError{Op: "create request", URL: target, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &catalog.TransportError{Op: "fetch", URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &catalog.TransportError{Op: "fetch", URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, &catalog.TransportError{Op: "read body", URL: target, Err: err}
	}

	return Decode(body)
}

func (f *HTTPFetcher) requestURL(bust bool) (string, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return "", err
	}
	if bust {
		q := u.Query()
		q.Set("t", strconv.FormatInt(f.now().UnixMilli(), 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Decode parses a manifest body. Anything that is not a non-empty JSON
// array of albums is reported as catalog.ErrEmptyCatalog.
func Decode(body []byte) ([]catalog.AlbumManifest, error) {
	var albums []catalog.AlbumManifest
	if err := json.Unmarshal(body, &albums); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrEmptyCatalog, err)
	}
	if len(albums) == 0 {
		return nil, catalog.ErrEmptyCatalog
	}
	return albums, nil
}
