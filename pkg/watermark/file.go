package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileStore keeps the watermark as a single text line in a local file.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore creates a FileStore for path. The file does not need to exist.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("watermark file path cannot be empty")
	}
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "FileStore").Str("path", path).Logger(),
	}, nil
}

// Load reads the stored value. A missing file or unparsable content yields zero.
func (s *FileStore) Load(_ context.Context) (int64, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Msg("Watermark file does not exist yet, using zero.")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read watermark file %s: %w", s.path, err)
	}

	nanos, ok := parseNanos(string(raw))
	if !ok {
		s.logger.Warn().Msg("Watermark file content is not an integer, using zero.")
		return 0, nil
	}
	return nanos, nil
}

// Save writes the value through a temporary file and renames it into place so
// a crash mid-write never leaves a truncated watermark behind.
func (s *FileStore) Save(_ context.Context, nanos int64) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".watermark-*")
	if err != nil {
		return fmt.Errorf("failed to create temp watermark file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(formatNanos(nanos)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp watermark file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to move watermark into %s: %w", s.path, err)
	}
	s.logger.Debug().Int64("nanos", nanos).Msg("Watermark saved.")
	return nil
}
