package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-profiles/core"
)

// Storage implements the key/value contract on a relational table. Both
// namespaces share one table, split by the namespace column; session
// rows are purged when the storage is built so they never survive a
// process restart.
type Storage struct {
	db   *bun.DB
	repo repository.Repository[*kvRecord]
}

func (s *Storage) get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("sqlstore: storage is not configured")
	}
	record := &kvRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.namespace = ?", namespace).
		Where("?TableAlias.entry_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return append([]byte(nil), record.Value...), true, nil
}

func (s *Storage) set(ctx context.Context, namespace, key string, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: storage is not configured")
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return upsertEntryTx(ctx, tx, namespace, key, value, now)
	})
}

func upsertEntryTx(ctx context.Context, tx bun.Tx, namespace, key string, value []byte, now time.Time) error {
	existing := &kvRecord{}
	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.namespace = ?", namespace).
		Where("?TableAlias.entry_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == sql.ErrNoRows {
		record := &kvRecord{
			ID:        uuid.NewString(),
			Namespace: namespace,
			EntryKey:  key,
			Value:     append([]byte(nil), value...),
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	}
	existing.Value = append([]byte(nil), value...)
	existing.UpdatedAt = now
	_, updateErr := tx.NewUpdate().
		Model(existing).
		Where("id = ?", existing.ID).
		Exec(ctx)
	return updateErr
}

func (s *Storage) remove(ctx context.Context, namespace, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: storage is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("namespace = ?", namespace).
		Where("entry_key = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Storage) listKeys(ctx context.Context, namespace, prefix string) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: storage is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("namespace", "=", namespace),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.entry_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
		}),
		repository.OrderBy("entry_key ASC"),
	)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.EntryKey)
	}
	return keys, nil
}

func (s *Storage) clearKeys(ctx context.Context, namespace, prefix string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: storage is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("namespace = ?", namespace).
		Where("entry_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Exec(ctx)
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so stored keys match
// literally.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(ctx, namespacePersistent, key)
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.set(ctx, namespacePersistent, key, value)
}

func (s *Storage) Delete(ctx context.Context, key string) (bool, error) {
	return s.remove(ctx, namespacePersistent, key)
}

func (s *Storage) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(ctx, namespacePersistent, key)
	return found, err
}

func (s *Storage) getMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: storage is not configured")
	}
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	var records []*kvRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.namespace = ?", namespace).
		Where("?TableAlias.entry_key IN (?)", bun.In(keys)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(records))
	for _, record := range records {
		out[record.EntryKey] = append([]byte(nil), record.Value...)
	}
	return out, nil
}

func (s *Storage) setMany(ctx context.Context, namespace string, entries map[string][]byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: storage is not configured")
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for key, value := range entries {
			if err := upsertEntryTx(ctx, tx, namespace, key, value, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) deleteMany(ctx context.Context, namespace string, keys []string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: storage is not configured")
	}
	if len(keys) == 0 {
		return 0, nil
	}
	res, err := s.db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("namespace = ?", namespace).
		Where("entry_key IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Storage) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(ctx, namespacePersistent, keys)
}

func (s *Storage) SetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(ctx, namespacePersistent, entries)
}

func (s *Storage) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(ctx, namespacePersistent, keys)
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(ctx, namespacePersistent, prefix)
}

func (s *Storage) Clear(ctx context.Context, prefix string) error {
	return s.clearKeys(ctx, namespacePersistent, prefix)
}

func (s *Storage) SessionGet(ctx context.Context, key string) ([]byte, bool, error) {
	return s.get(ctx, namespaceSession, key)
}

func (s *Storage) SessionSet(ctx context.Context, key string, value []byte) error {
	return s.set(ctx, namespaceSession, key, value)
}

func (s *Storage) SessionDelete(ctx context.Context, key string) (bool, error) {
	return s.remove(ctx, namespaceSession, key)
}

func (s *Storage) SessionHas(ctx context.Context, key string) (bool, error) {
	_, found, err := s.get(ctx, namespaceSession, key)
	return found, err
}

func (s *Storage) SessionGetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return s.getMany(ctx, namespaceSession, keys)
}

func (s *Storage) SessionSetMany(ctx context.Context, entries map[string][]byte) error {
	return s.setMany(ctx, namespaceSession, entries)
}

func (s *Storage) SessionDeleteMany(ctx context.Context, keys []string) (int, error) {
	return s.deleteMany(ctx, namespaceSession, keys)
}

func (s *Storage) SessionList(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(ctx, namespaceSession, prefix)
}

func (s *Storage) SessionClear(ctx context.Context, prefix string) error {
	return s.clearKeys(ctx, namespaceSession, prefix)
}

func (s *Storage) Info(ctx context.Context) (core.StorageInfo, error) {
	info := core.StorageInfo{
		Type:         "sql",
		IsAvailable:  s != nil && s.db != nil,
		IsPersistent: true,
	}
	if s == nil || s.db == nil {
		return info, nil
	}
	total, err := s.db.NewSelect().
		Model((*kvRecord)(nil)).
		Where("?TableAlias.namespace = ?", namespacePersistent).
		Count(ctx)
	if err != nil {
		return core.StorageInfo{}, err
	}
	used := int64(total)
	info.QuotaUsed = &used
	return info, nil
}

var _ core.Storage = (*Storage)(nil)
