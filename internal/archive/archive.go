package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Driver names an archive backend.
type Driver string

const (
	DriverNone       Driver = "none"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("archive: object not found")

// Info describes one archived payload.
type Info struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an archive backend. Put must be idempotent for identical
// content under the same key.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, data []byte) (Info, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key returns the object key for a submission payload.
func Key(provenance, payloadHash string) string {
	p := strings.ToLower(strings.TrimSpace(provenance))
	if p == "" {
		p = "unknown"
	}
	return path.Join("submissions", p, payloadHash+".json")
}

// sanitizeKey rejects keys that would escape the archive root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	Path   string
	S3     S3Config
}

// Open returns the store selected by cfg. DriverNone (or an empty driver)
// returns nil, nil: archiving is disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverFilesystem:
		return NewFilesystem(cfg.Path)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
