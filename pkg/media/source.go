// Package media opens the input files named in analytics requests.
package media

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidName is returned for names that would resolve outside the data root.
var ErrInvalidName = errors.New("media name escapes data root")

// Source opens a media file by the name carried in a request payload.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
