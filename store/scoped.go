package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-profiles/core"
)

// ScopedStorage decorates a Storage by prefixing every key with
// "<namespace>:<owner>:" so independent consumers can share one
// physical store. List and Clear are confined to the owner's prefix and
// returned keys have the prefix stripped.
type ScopedStorage struct {
	base   core.Storage
	prefix string
}

func NewScopedStorage(base core.Storage, namespace, ownerID string) (*ScopedStorage, error) {
	if base == nil {
		return nil, fmt.Errorf("store: base storage is required")
	}
	namespace = strings.TrimSpace(namespace)
	ownerID = strings.TrimSpace(ownerID)
	if namespace == "" {
		return nil, fmt.Errorf("store: namespace is required")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("store: owner id is required")
	}
	return &ScopedStorage{
		base:   base,
		prefix: namespace + ":" + ownerID + ":",
	}, nil
}

// Prefix returns the full key prefix this wrapper applies.
func (s *ScopedStorage) Prefix() string {
	return s.prefix
}

func (s *ScopedStorage) scope(key string) string {
	return s.prefix + key
}

func (s *ScopedStorage) unscope(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

func (s *ScopedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.base.Get(ctx, s.scope(key))
}

func (s *ScopedStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.base.Set(ctx, s.scope(key), value)
}

func (s *ScopedStorage) Delete(ctx context.Context, key string) (bool, error) {
	return s.base.Delete(ctx, s.scope(key))
}

func (s *ScopedStorage) Has(ctx context.Context, key string) (bool, error) {
	return s.base.Has(ctx, s.scope(key))
}

func (s *ScopedStorage) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, s.scope(key))
	}
	entries, err := s.base.GetMany(ctx, scoped)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for key, value := range entries {
		out[s.unscope(key)] = value
	}
	return out, nil
}

func (s *ScopedStorage) SetMany(ctx context.Context, entries map[string][]byte) error {
	scoped := make(map[string][]byte, len(entries))
	for key, value := range entries {
		scoped[s.scope(key)] = value
	}
	return s.base.SetMany(ctx, scoped)
}

func (s *ScopedStorage) DeleteMany(ctx context.Context, keys []string) (int, error) {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, s.scope(key))
	}
	return s.base.DeleteMany(ctx, scoped)
}

func (s *ScopedStorage) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.base.List(ctx, s.scope(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.unscope(key))
	}
	return out, nil
}

func (s *ScopedStorage) Clear(ctx context.Context, prefix string) error {
	return s.base.Clear(ctx, s.scope(prefix))
}

func (s *ScopedStorage) SessionGet(ctx context.Context, key string) ([]byte, bool, error) {
	return s.base.SessionGet(ctx, s.scope(key))
}

func (s *ScopedStorage) SessionSet(ctx context.Context, key string, value []byte) error {
	return s.base.SessionSet(ctx, s.scope(key), value)
}

func (s *ScopedStorage) SessionDelete(ctx context.Context, key string) (bool, error) {
	return s.base.SessionDelete(ctx, s.scope(key))
}

func (s *ScopedStorage) SessionHas(ctx context.Context, key string) (bool, error) {
	return s.base.SessionHas(ctx, s.scope(key))
}

func (s *ScopedStorage) SessionGetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, s.scope(key))
	}
	entries, err := s.base.SessionGetMany(ctx, scoped)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for key, value := range entries {
		out[s.unscope(key)] = value
	}
	return out, nil
}

func (s *ScopedStorage) SessionSetMany(ctx context.Context, entries map[string][]byte) error {
	scoped := make(map[string][]byte, len(entries))
	for key, value := range entries {
		scoped[s.scope(key)] = value
	}
	return s.base.SessionSetMany(ctx, scoped)
}

func (s *ScopedStorage) SessionDeleteMany(ctx context.Context, keys []string) (int, error) {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, s.scope(key))
	}
	return s.base.SessionDeleteMany(ctx, scoped)
}

func (s *ScopedStorage) SessionList(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.base.SessionList(ctx, s.scope(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.unscope(key))
	}
	return out, nil
}

func (s *ScopedStorage) SessionClear(ctx context.Context, prefix string) error {
	return s.base.SessionClear(ctx, s.scope(prefix))
}

func (s *ScopedStorage) Info(ctx context.Context) (core.StorageInfo, error) {
	return s.base.Info(ctx)
}

var _ core.Storage = (*ScopedStorage)(nil)
