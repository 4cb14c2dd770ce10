package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eventos/apiserver/config"
)

// CacheControl is attached to every stored object. Avatar keys are stable per
// user, so browsers revalidate after a few minutes.
const CacheControl = "public, max-age=300"

var (
	// ErrObjectNotFound is returned by Get when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	ErrEmptyKey       = errors.New("object key is empty")
)

// Object is an opened stored object. The caller closes Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStorage is implemented by each storage backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Close() error
}

// Storage validates keys before handing them to the configured backend.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open connects the backend selected by cfg.Backend and makes sure its
// bucket exists. It returns nil without error when storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)

	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}

	s := NewStorage(backend)
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return s, nil
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return fmt.Errorf("put %s/%s: %w", s.backend.Bucket(), key, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (*Object, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	obj, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.backend.Bucket(), key, err)
	}
	return obj, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	err := s.backend.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("delete %s/%s: %w", s.backend.Bucket(), key, err)
	}
	return nil
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func (s *Storage) Close() error {
	return s.backend.Close()
}
