package boltstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/goliatone/go-profiles/core"
)

var (
	bucketPersistent = []byte("persistent")
	bucketSession    = []byte("session")
)

// Storage is a single-file bbolt-backed Storage. The session bucket is
// dropped and recreated on every Open, so session entries behave like a
// per-process scratch namespace.
type Storage struct {
	db   *bbolt.DB
	path string
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Storage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("boltstore: database path is required")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucketPersistent); createErr != nil {
			return createErr
		}
		// A fresh session bucket per open: session entries must not
		// survive a reopen.
		if tx.Bucket(bucketSession) != nil {
			if deleteErr := tx.DeleteBucket(bucketSession); deleteErr != nil {
				return deleteErr
			}
		}
		_, createErr := tx.CreateBucket(bucketSession)
		return createErr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: prepare buckets: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) get(bucket []byte, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			value = append([]byte(nil), raw...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (s *Storage) set(bucket []byte, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("boltstore: bucket %q missing", bucket)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *Storage) remove(bucket []byte, key string) (bool, error) {
	removed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if b.Get([]byte(key)) == nil {
			return nil
		}
		removed = true
		return b.Delete([]byte(key))
	})
	return removed, err
}

func (s *Storage) listKeys(bucket []byte, prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		cursor := b.Cursor()
		search := []byte(prefix)
		for k, _ := cursor.Seek(search); k != nil && strings.HasPrefix(string(k), prefix); k, _ = cursor.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Storage) clearKeys(bucket []byte, prefix string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		cursor := b.Cursor()
		search := []byte(prefix)
		var doomed [][]byte
		for k, _ := cursor.Seek(search); k != nil && strings.HasPrefix(string(k), prefix); k, _ = cursor.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, key := range doomed {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(bucketPersistent, key)
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.set(bucketPersistent, key, value)
}

func (s *Storage) Delete(ctx context.Context, key string) (bool, error) {
	return s.remove(bucketPersistent, key)
}

func (s *Storage) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(bucketPersistent, key)
	return found, err
}

func (s *Storage) getMany(bucket []byte, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		for _, key := range keys {
			if raw := b.Get([]byte(key)); raw != nil {
				out[key] = append([]byte(nil), raw...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) setMany(bucket []byte, entries map[string][]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("boltstore: bucket %q missing", bucket)
		}
		for key, value := range entries {
			if err := b.Put([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) deleteMany(bucket []byte, keys []string) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		for _, key := range keys {
			if b.Get([]byte(key)) == nil {
				continue
			}
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Storage) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(bucketPersistent, keys)
}

func (s *Storage) SetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(bucketPersistent, entries)
}

func (s *Storage) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(bucketPersistent, keys)
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(bucketPersistent, prefix)
}

func (s *Storage) Clear(ctx context.Context, prefix string) error {
	return s.clearKeys(bucketPersistent, prefix)
}

func (s *Storage) SessionGet(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(bucketSession, key)
}

func (s *Storage) SessionSet(ctx context.Context, key string, value []byte) error {
	return s.set(bucketSession, key, value)
}

func (s *Storage) SessionDelete(ctx context.Context, key string) (bool, error) {
	return s.remove(bucketSession, key)
}

func (s *Storage) SessionHas(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(bucketSession, key)
	return found, err
}

func (s *Storage) SessionGetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(bucketSession, keys)
}

func (s *Storage) SessionSetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(bucketSession, entries)
}

func (s *Storage) SessionDeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(bucketSession, keys)
}

func (s *Storage) SessionList(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(bucketSession, prefix)
}

func (s *Storage) SessionClear(ctx context.Context, prefix string) error {
	return s.clearKeys(bucketSession, prefix)
}

func (s *Storage) Info(ctx context.Context) (core.StorageInfo, error) {
	info := core.StorageInfo{
		Type:         "bbolt",
		IsAvailable:  s != nil && s.db != nil,
		IsPersistent: true,
	}
	if s != nil && s.db != nil {
		err := s.db.View(func(tx *bbolt.Tx) error {
			size := tx.Size()
			info.QuotaUsed = &size
			return nil
		})
		if err != nil {
			return core.StorageInfo{}, err
		}
	}
	return info, nil
}

var _ core.Storage = (*Storage)(nil)
