package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/riskreview-backend/internal/platform/envutil"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

var ErrInvalidURI = errors.New("invalid gs:// uri")

// DocumentSource loads previously extracted document text from object storage.
type DocumentSource interface {
	Load(ctx context.Context, uri string) (string, error)
	Close() error
}

type documentSource struct {
	log      *logger.Logger
	client   *storage.Client
	maxBytes int64
}

// NewDocumentSource builds a GCS-backed source. GCS_EMULATOR_HOST points the
// client at a local emulator without credentials.
func NewDocumentSource(ctx context.Context, log *logger.Logger, maxBytes int64) (DocumentSource, error) {
	var opts []option.ClientOption
	if host := envutil.String("GCS_EMULATOR_HOST", ""); host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(strings.TrimRight(host, "/")+"/storage/v1/"),
		)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	return &documentSource{
		log:      log.With("service", "DocumentSource"),
		client:   client,
		maxBytes: maxBytes,
	}, nil
}

func (s *documentSource) Load(ctx context.Context, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", uri, err)
	}
	defer r.Close()

	limit := s.maxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", uri, err)
	}
	if int64(len(raw)) > limit {
		return "", fmt.Errorf("%s exceeds %d bytes", uri, limit)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s is not utf-8 text", uri)
	}
	s.log.Debug("Loaded document", "bucket", bucket, "key", key, "bytes", len(raw))
	return string(raw), nil
}

func (s *documentSource) Close() error {
	return s.client.Close()
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(raw string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "gs" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no object key", ErrInvalidURI, raw)
	}
	return u.Host, key, nil
}
