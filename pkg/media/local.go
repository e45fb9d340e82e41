package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// LocalDir serves media from a directory on the local filesystem.
type LocalDir struct {
	root   string
	logger zerolog.Logger
}

// NewLocalDir creates a LocalDir rooted at dir.
func NewLocalDir(dir string, logger zerolog.Logger) (*LocalDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory cannot be empty")
	}
	return &LocalDir{
		root:   dir,
		logger: logger.With().Str("component", "LocalMedia").Str("root", dir).Logger(),
	}, nil
}

// Open opens name relative to the root directory.
func (d *LocalDir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f, err := os.Open(filepath.Join(d.root, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open media %s: %w", name, err)
	}
	d.logger.Debug().Str("name", name).Msg("Opened media file.")
	return f, nil
}
