package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-profiles/core"
)

// MemoryStorage is a process-local Storage. The persistent namespace
// survives for the lifetime of the value; the session namespace is
// dropped by ResetSession, mirroring what a reopen does on durable
// backends. Useful for tests and ephemeral hosts.
type MemoryStorage struct {
	mu         sync.RWMutex
	persistent map[string][]byte
	session    map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		persistent: make(map[string][]byte),
		session:    make(map[string][]byte),
	}
}

// ResetSession discards the session namespace, as a process restart
// would.
func (s *MemoryStorage) ResetSession() {
	s.mu.Lock()
	s.session = make(map[string][]byte)
	s.mu.Unlock()
}

// bucketLocked requires s.mu held (read or write).
func (s *MemoryStorage) bucketLocked(session bool) map[string][]byte {
	if session {
		return s.session
	}
	return s.persistent
}

func (s *MemoryStorage) get(session bool, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.bucketLocked(session)[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (s *MemoryStorage) set(session bool, key string, value []byte) error {
	s.mu.Lock()
	s.bucketLocked(session)[key] = cloneBytes(value)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) remove(session bool, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(session)
	if _, ok := bucket[key]; !ok {
		return false, nil
	}
	delete(bucket, key)
	return true, nil
}

func (s *MemoryStorage) listKeys(session bool, prefix string) ([]string, error) {
	s.mu.RLock()
	bucket := s.bucketLocked(session)
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) clearKeys(session bool, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(session)
	for key := range bucket {
		if strings.HasPrefix(key, prefix) {
			delete(bucket, key)
		}
	}
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(false, key)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.set(false, key, value)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) (bool, error) {
	return s.remove(false, key)
}

func (s *MemoryStorage) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(false, key)
	return found, err
}

func (s *MemoryStorage) getMany(session bool, keys []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.bucketLocked(session)
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := bucket[key]; ok {
			out[key] = cloneBytes(value)
		}
	}
	return out, nil
}

func (s *MemoryStorage) setMany(session bool, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(session)
	for key, value := range entries {
		bucket[key] = cloneBytes(value)
	}
	return nil
}

func (s *MemoryStorage) deleteMany(session bool, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(session)
	removed := 0
	for _, key := range keys {
		if _, ok := bucket[key]; ok {
			delete(bucket, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStorage) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(false, keys)
}

func (s *MemoryStorage) SetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(false, entries)
}

func (s *MemoryStorage) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(false, keys)
}

func (s *MemoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(false, prefix)
}

func (s *MemoryStorage) Clear(ctx context.Context, prefix string) error {
	return s.clearKeys(false, prefix)
}

func (s *MemoryStorage) SessionGet(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(true, key)
}

func (s *MemoryStorage) SessionSet(ctx context.Context, key string, value []byte) error {
	return s.set(true, key, value)
}

func (s *MemoryStorage) SessionDelete(ctx context.Context, key string) (bool, error) {
	return s.remove(true, key)
}

func (s *MemoryStorage) SessionHas(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(true, key)
	return found, err
}

func (s *MemoryStorage) SessionGetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(true, keys)
}

func (s *MemoryStorage) SessionSetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(true, entries)
}

func (s *MemoryStorage) SessionDeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(true, keys)
}

func (s *MemoryStorage) SessionList(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(true, prefix)
}

func (s *MemoryStorage) SessionClear(ctx context.Context, prefix string) error {
	return s.clearKeys(true, prefix)
}

func (s *MemoryStorage) Info(ctx context.Context) (core.StorageInfo, error) {
	return core.StorageInfo{
		Type:         "memory",
		IsAvailable:  true,
		IsPersistent: false,
	}, nil
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

var _ core.Storage = (*MemoryStorage)(nil)
