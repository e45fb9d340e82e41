package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a *storage.Client satisfy GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := a.handle.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GCSConfig locates media in a bucket.
type GCSConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSSource serves media objects from a Cloud Storage bucket.
type GCSSource struct {
	bucket GCSBucketHandle
	prefix string
	logger zerolog.Logger
}

// NewGCSSource creates a GCSSource.
func NewGCSSource(client GCSClient, cfg GCSConfig, logger zerolog.Logger) (*GCSSource, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	return &GCSSource{
		bucket: client.Bucket(cfg.BucketName),
		prefix: strings.Trim(cfg.ObjectPrefix, "/"),
		logger: logger.With().Str("component", "GCSMedia").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// Open starts reading the object for name.
func (s *GCSSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	clean := path.Clean("/" + name)
	if name == "" || clean != "/"+name {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	object := strings.TrimPrefix(clean, "/")
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}
	r, err := s.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs object %s: %w", object, err)
	}
	s.logger.Debug().Str("object", object).Msg("Opened media object.")
	return r, nil
}
