package filestorage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidName is returned for names that would escape the storage namespace
var ErrInvalidName = errors.New("invalid stored file name")

// FileStorage is the flat, append-only namespace attachments live in. Names
// are produced by StoredName and shared by every chat.
type FileStorage interface {
	// Save writes r under name and returns the number of bytes written
	Save(ctx context.Context, name string, r io.Reader, mimeType string) (int64, error)

	// Exists reports whether a binary is stored under name
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes name; a missing object is not an error
	Delete(ctx context.Context, name string) error

	// URL returns the address clients download name from
	URL(ctx context.Context, name string) (string, error)
}
