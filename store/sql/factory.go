package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// NewStorage builds a Storage from anything carrying a bun DB: a raw
// *bun.DB or a go-persistence-bun client. Session rows left over from a
// previous process are purged before the storage is handed out.
func NewStorage(ctx context.Context, persistenceClient any) (*Storage, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}

	repo := repository.NewRepository[*kvRecord](db, kvHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if validateErr := validator.Validate(); validateErr != nil {
			return nil, fmt.Errorf("sqlstore: invalid kv repository wiring: %w", validateErr)
		}
	}

	storage := &Storage{db: db, repo: repo}
	if _, err := db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("namespace = ?", namespaceSession).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: reset session namespace: %w", err)
	}
	return storage, nil
}

// NewStorageFromPersistence is a convenience constructor over a
// go-persistence-bun client.
func NewStorageFromPersistence(ctx context.Context, client *persistence.Client) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewStorage(ctx, client)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
