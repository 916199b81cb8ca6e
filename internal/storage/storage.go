// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) and implementations for local disk
// and S3 storage. Uploaded media lands in temporary storage for decoding;
// finished summary reports can be archived to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and persistent file storage.
// Implementations must handle temporary files during analysis and
// optionally support archiving summary reports to S3.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Archive persists data under the given key and returns the archive URL.
	// Returns ErrArchiveNotConfigured if no archive backend is configured.
	Archive(ctx context.Context, key string, data io.Reader) (url string, err error)
}
