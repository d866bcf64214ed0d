package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	profilemigrations "github.com/goliatone/go-profiles/migrations"
	sqlstore "github.com/goliatone/go-profiles/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-profiles-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:profiles-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = profilemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != profilemigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, profilemigrations.WithValidationTargets(profilemigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newTestStorage(t *testing.T) (*sqlstore.Storage, func()) {
	t.Helper()

	client, cleanup := newSQLiteClient(t)
	storage, err := sqlstore.NewStorageFromPersistence(context.Background(), client)
	if err != nil {
		cleanup()
		t.Fatalf("new storage: %v", err)
	}
	return storage, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"profile_kv_entries",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "profile_kv_entries" {
		t.Fatalf("expected profile_kv_entries table, got %q", tableName)
	}
}

func TestStorage_PersistentRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := storage.Get(ctx, "k1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(value, []byte("v1")) {
		t.Fatalf("value = %q", value)
	}

	if err := storage.Set(ctx, "k1", []byte("v2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	value, _, _ = storage.Get(ctx, "k1")
	if !bytes.Equal(value, []byte("v2")) {
		t.Fatalf("value after upsert = %q", value)
	}

	has, err := storage.Has(ctx, "k1")
	if err != nil || !has {
		t.Fatalf("has: %v %v", has, err)
	}

	removed, err := storage.Delete(ctx, "k1")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := storage.Delete(ctx, "k1"); removed {
		t.Fatalf("repeated delete should report false")
	}
}

func TestStorage_SessionNamespaceIsIsolated(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.Set(ctx, "shared", []byte("durable")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := storage.SessionSet(ctx, "shared", []byte("ephemeral")); err != nil {
		t.Fatalf("session set: %v", err)
	}

	durable, _, _ := storage.Get(ctx, "shared")
	ephemeral, _, _ := storage.SessionGet(ctx, "shared")
	if bytes.Equal(durable, ephemeral) {
		t.Fatalf("namespaces overlap: %q", durable)
	}

	if err := storage.SessionClear(ctx, ""); err != nil {
		t.Fatalf("session clear: %v", err)
	}
	if _, found, _ := storage.SessionGet(ctx, "shared"); found {
		t.Fatalf("session entry survived clear")
	}
	if _, found, _ := storage.Get(ctx, "shared"); !found {
		t.Fatalf("persistent entry lost on session clear")
	}
}

func TestStorage_NewStorageResetsSessionRows(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	first, err := sqlstore.NewStorageFromPersistence(ctx, client)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if err := first.Set(ctx, "durable", []byte("kept")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.SessionSet(ctx, "ephemeral", []byte("dropped")); err != nil {
		t.Fatalf("session set: %v", err)
	}

	second, err := sqlstore.NewStorageFromPersistence(ctx, client)
	if err != nil {
		t.Fatalf("rebuild storage: %v", err)
	}

	if _, found, _ := second.SessionGet(ctx, "ephemeral"); found {
		t.Fatalf("session row survived storage rebuild")
	}
	value, found, err := second.Get(ctx, "durable")
	if err != nil || !found || !bytes.Equal(value, []byte("kept")) {
		t.Fatalf("persistent row lost: found=%v value=%q err=%v", found, value, err)
	}
}

func TestStorage_ListEscapesLikeWildcards(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.SetMany(ctx, map[string][]byte{
		"pre%fix:a":  []byte("1"),
		"pre%fix:b":  []byte("2"),
		"pre_fix:c":  []byte("3"),
		"prexfix:d":  []byte("4"),
		"other:misc": []byte("5"),
	}); err != nil {
		t.Fatalf("set many: %v", err)
	}

	keys, err := storage.List(ctx, "pre%fix:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "pre%fix:a" || keys[1] != "pre%fix:b" {
		t.Fatalf("percent prefix matched %v", keys)
	}

	keys, err = storage.List(ctx, "pre_fix:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "pre_fix:c" {
		t.Fatalf("underscore prefix matched %v", keys)
	}

	if err := storage.Clear(ctx, "pre%fix:"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	remaining, _ := storage.List(ctx, "")
	sort.Strings(remaining)
	if len(remaining) != 3 {
		t.Fatalf("keys after clear = %v", remaining)
	}
}

func TestStorage_BatchOperations(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.SetMany(ctx, map[string][]byte{
		"a:1": []byte("1"),
		"a:2": []byte("2"),
		"b:1": []byte("3"),
	}); err != nil {
		t.Fatalf("set many: %v", err)
	}

	got, err := storage.GetMany(ctx, []string{"a:1", "b:1", "ghost"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if !bytes.Equal(got["a:1"], []byte("1")) {
		t.Fatalf("a:1 = %q", got["a:1"])
	}

	removed, err := storage.DeleteMany(ctx, []string{"a:1", "a:2", "ghost"})
	if err != nil || removed != 2 {
		t.Fatalf("delete many: removed=%d err=%v", removed, err)
	}
}

func TestStorage_SessionBatchOperations(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.SessionSetMany(ctx, map[string][]byte{
		"a:1": []byte("1"),
		"a:2": []byte("2"),
		"b:1": []byte("3"),
	}); err != nil {
		t.Fatalf("session set many: %v", err)
	}
	if _, found, _ := storage.Get(ctx, "a:1"); found {
		t.Fatalf("session batch write leaked into persistent namespace")
	}

	got, err := storage.SessionGetMany(ctx, []string{"a:1", "b:1", "ghost"})
	if err != nil {
		t.Fatalf("session get many: %v", err)
	}
	if len(got) != 2 || !bytes.Equal(got["a:1"], []byte("1")) {
		t.Fatalf("got %v", got)
	}

	removed, err := storage.SessionDeleteMany(ctx, []string{"a:1", "a:2", "ghost"})
	if err != nil || removed != 2 {
		t.Fatalf("session delete many: removed=%d err=%v", removed, err)
	}
	keys, _ := storage.SessionList(ctx, "")
	if len(keys) != 1 || keys[0] != "b:1" {
		t.Fatalf("session keys = %v", keys)
	}
}

func TestStorage_InfoCountsPersistentRows(t *testing.T) {
	ctx := context.Background()
	storage, cleanup := newTestStorage(t)
	defer cleanup()

	if err := storage.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := storage.SessionSet(ctx, "k2", []byte("v2")); err != nil {
		t.Fatalf("session set: %v", err)
	}

	info, err := storage.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Type != "sql" || !info.IsAvailable || !info.IsPersistent {
		t.Fatalf("info = %+v", info)
	}
	if info.QuotaUsed == nil || *info.QuotaUsed != 1 {
		t.Fatalf("quota used = %v", info.QuotaUsed)
	}
}
