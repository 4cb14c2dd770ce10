package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/eventos/apiserver/internal/storage"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryObjectStorage is an in-process storage.ObjectStorage for tests.
// Set PutErr to make every Put fail.
type MemoryObjectStorage struct {
	PutErr error

	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryObjectStorage) EnsureBucket(context.Context) error { return nil }

func (m *MemoryObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *MemoryObjectStorage) Get(_ context.Context, key string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (m *MemoryObjectStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryObjectStorage) Bucket() string { return "memory" }

func (m *MemoryObjectStorage) Close() error { return nil }

// Has reports whether key is stored.
func (m *MemoryObjectStorage) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// ContentType returns the content type an object was stored with.
func (m *MemoryObjectStorage) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

var _ storage.ObjectStorage = (*MemoryObjectStorage)(nil)
