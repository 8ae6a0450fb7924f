package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process store for tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	created map[string]time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), created: make(map[string]time.Time)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, data []byte) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	k, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[k]; ok && !bytes.Equal(existing, data) {
		return Info{}, fmt.Errorf("archive %s already exists with different content", key)
	}
	if _, ok := m.objects[k]; !ok {
		m.objects[k] = append([]byte(nil), data...)
		m.created[k] = time.Now().UTC()
	}
	sum := sha256.Sum256(data)
	return Info{Key: k, Size: int64(len(data)), ETag: hex.EncodeToString(sum[:]), CreatedAt: m.created[k]}, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Keys returns the stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
