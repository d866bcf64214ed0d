package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	profiles "github.com/goliatone/go-profiles"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRegister_Validation(t *testing.T) {
	noop := func(_ context.Context, _ string, _ string, _ fs.FS) error {
		return nil
	}

	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register function")
	}
	if _, err := Register(context.Background(), noop, WithValidationTargets()); err == nil {
		t.Fatalf("expected error for empty validation targets")
	}
	if _, err := Register(context.Background(), noop, WithDialectSourceLabel("  ")); err == nil {
		t.Fatalf("expected error for blank source label")
	}
}

func TestRegister_PropagatesRegisterErrors(t *testing.T) {
	boom := fmt.Errorf("register boom")
	_, err := Register(context.Background(), func(_ context.Context, _ string, _ string, _ fs.FS) error {
		return boom
	}, WithValidationTargets(DialectSQLite))
	if err == nil || !strings.Contains(err.Error(), "register boom") {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestKVEntriesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := profiles.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/20250901000000_create_profile_kv_entries.up.sql",
		"data/sql/migrations/20250901000000_create_profile_kv_entries.down.sql",
		"data/sql/migrations/sqlite/20250901000000_create_profile_kv_entries.up.sql",
		"data/sql/migrations/sqlite/20250901000000_create_profile_kv_entries.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteKVEntriesMigration_ApplyAndRollback(t *testing.T) {
	dsn := fmt.Sprintf(
		"file:migrations-kv-entries-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	root := profiles.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "20250901000000_create_profile_kv_entries.up.sql"); err != nil {
		t.Fatalf("apply migration up: %v", err)
	}

	insertStatement := `
		INSERT INTO profile_kv_entries (
			id,
			namespace,
			entry_key,
			value
		) VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertStatement, "row-1", "persistent", "k1", []byte("v1")); err != nil {
		t.Fatalf("insert seed row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertStatement, "row-2", "persistent", "k1", []byte("v2")); err == nil {
		t.Fatalf("expected namespace/key uniqueness violation")
	}
	if _, err := db.ExecContext(ctx, insertStatement, "row-3", "session", "k1", []byte("v3")); err != nil {
		t.Fatalf("insert same key in session namespace: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "20250901000000_create_profile_kv_entries.down.sql"); err != nil {
		t.Fatalf("apply migration down: %v", err)
	}

	var tableName sql.NullString
	err = db.QueryRowContext(
		ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"profile_kv_entries",
	).Scan(&tableName)
	if err != sql.ErrNoRows {
		t.Fatalf("expected table to be dropped, got name=%v err=%v", tableName, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
