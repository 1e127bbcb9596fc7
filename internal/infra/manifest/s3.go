package manifest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// S3Config holds the object store connection settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Fetcher loads the manifest from an S3-compatible object store.
type S3Fetcher struct {
	client *minio.Client
	bucket string
	key    string
	url    string
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %q", raw)
	}
	return u.Host, key, nil
}

// NewS3Fetcher creates a fetcher for the object named by rawURL
// (s3://bucket/key).
func NewS3Fetcher(rawURL string, cfg S3Config) (*S3Fetcher, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", bucket).
		Str("key", key).
		Msg("S3 manifest source configured")

	return &S3Fetcher{client: client, bucket: bucket, key: key, url: rawURL}, nil
}

// Fetch downloads and decodes the manifest object. bust has no effect: the
// object store is read directly.
func (f *S3Fetcher) Fetch(ctx context.Context, _ bool) ([]catalog.AlbumManifest, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, f.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, f.transportError(err)
	}
	defer obj.Close()

	body, err := io.ReadAll(io.LimitReader(obj, maxManifestSize))
	if err != nil {
		return nil, f.transportError(err)
	}

	return Decode(body)
}

func (f *S3Fetcher) transportError(err error) error {
	te := &catalog.TransportError{Op: "get object", URL: f.url, Err: err}
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
		te.StatusCode = resp.StatusCode
	}
	return te
}
