package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Client is the minimal REST surface the reconciler needs from a CTFd
// instance. Paths are relative to the instance root (e.g. /api/v1/flags).
// Successful calls return the "data" member of the response envelope;
// non-2xx responses are reported as *StatusError.
type Client interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) error

	// Upload sends a multipart/form-data request with one "file" part per
	// entry of files.
	Upload(ctx context.Context, path string, fields map[string]string, files []File) (json.RawMessage, error)

	// Download fetches raw bytes, e.g. a challenge file URL.
	Download(ctx context.Context, url string) ([]byte, error)
}

// File is a file part of a multipart upload.
type File struct {
	Name   string
	Reader io.Reader
}

// StatusError reports a non-2xx response or an unsuccessful envelope.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}
