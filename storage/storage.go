package storage

import (
	"context"
	"io"
)

// FileUploader stores dispute evidence files and returns a public URL
// for the stored object.
type FileUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}
