package store

import (
	"bytes"
	"context"
	"sort"
	"testing"
)

func TestNewScopedStorage_Validation(t *testing.T) {
	base := NewMemoryStorage()

	tests := []struct {
		name      string
		base      *MemoryStorage
		namespace string
		ownerID   string
		wantErr   bool
	}{
		{name: "valid", base: base, namespace: "profiles", ownerID: "owner-1"},
		{name: "nil base", base: nil, namespace: "profiles", ownerID: "owner-1", wantErr: true},
		{name: "blank namespace", base: base, namespace: "  ", ownerID: "owner-1", wantErr: true},
		{name: "blank owner", base: base, namespace: "profiles", ownerID: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scoped *ScopedStorage
			var err error
			if tt.base == nil {
				scoped, err = NewScopedStorage(nil, tt.namespace, tt.ownerID)
			} else {
				scoped, err = NewScopedStorage(tt.base, tt.namespace, tt.ownerID)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if scoped.Prefix() != "profiles:owner-1:" {
				t.Fatalf("prefix = %q", scoped.Prefix())
			}
		})
	}
}

func TestScopedStorage_ConfinesKeysToPrefix(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStorage()

	one, err := NewScopedStorage(base, "profiles", "owner-1")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}
	two, err := NewScopedStorage(base, "profiles", "owner-2")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}

	if err := one.Set(ctx, "cred", []byte("alpha")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := two.Set(ctx, "cred", []byte("beta")); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, found, err := one.Get(ctx, "cred")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(value, []byte("alpha")) {
		t.Fatalf("owner-1 read %q", value)
	}

	raw, found, _ := base.Get(ctx, "profiles:owner-1:cred")
	if !found || !bytes.Equal(raw, []byte("alpha")) {
		t.Fatalf("base key missing prefix: found=%v value=%q", found, raw)
	}

	keys, err := one.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "cred" {
		t.Fatalf("owner-1 keys = %v", keys)
	}

	if err := one.Clear(ctx, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := two.Get(ctx, "cred"); !found {
		t.Fatalf("clear crossed owner boundary")
	}
}

func TestScopedStorage_BatchHelpersRewriteKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStorage()

	scoped, err := NewScopedStorage(base, "profiles", "owner-1")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}

	if err := scoped.SetMany(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}); err != nil {
		t.Fatalf("set many: %v", err)
	}

	baseKeys, _ := base.List(ctx, "profiles:owner-1:")
	sort.Strings(baseKeys)
	if len(baseKeys) != 2 || baseKeys[0] != "profiles:owner-1:a" {
		t.Fatalf("base keys = %v", baseKeys)
	}

	got, err := scoped.GetMany(ctx, []string{"a", "b", "ghost"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if _, ok := got["a"]; !ok {
		t.Fatalf("keys not unscoped: %v", got)
	}

	removed, err := scoped.DeleteMany(ctx, []string{"a", "ghost"})
	if err != nil || removed != 1 {
		t.Fatalf("delete many: removed=%d err=%v", removed, err)
	}
}

func TestScopedStorage_SessionSurface(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStorage()

	scoped, err := NewScopedStorage(base, "profiles", "owner-1")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}

	if err := scoped.SessionSet(ctx, "temp", []byte("value")); err != nil {
		t.Fatalf("session set: %v", err)
	}
	if _, found, _ := scoped.Get(ctx, "temp"); found {
		t.Fatalf("session write leaked into persistent namespace")
	}

	value, found, err := scoped.SessionGet(ctx, "temp")
	if err != nil || !found || !bytes.Equal(value, []byte("value")) {
		t.Fatalf("session get: found=%v value=%q err=%v", found, value, err)
	}

	keys, err := scoped.SessionList(ctx, "")
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "temp" {
		t.Fatalf("session keys = %v", keys)
	}

	removed, err := scoped.SessionDelete(ctx, "temp")
	if err != nil || !removed {
		t.Fatalf("session delete: removed=%v err=%v", removed, err)
	}
}

func TestScopedStorage_SessionBatchHelpersRewriteKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStorage()

	scoped, err := NewScopedStorage(base, "profiles", "owner-1")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}

	if err := scoped.SessionSetMany(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}); err != nil {
		t.Fatalf("session set many: %v", err)
	}

	baseKeys, _ := base.SessionList(ctx, "profiles:owner-1:")
	sort.Strings(baseKeys)
	if len(baseKeys) != 2 || baseKeys[0] != "profiles:owner-1:a" {
		t.Fatalf("base session keys = %v", baseKeys)
	}

	got, err := scoped.SessionGetMany(ctx, []string{"a", "b", "ghost"})
	if err != nil {
		t.Fatalf("session get many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if _, ok := got["a"]; !ok {
		t.Fatalf("session keys not unscoped: %v", got)
	}

	removed, err := scoped.SessionDeleteMany(ctx, []string{"a", "ghost"})
	if err != nil || removed != 1 {
		t.Fatalf("session delete many: removed=%d err=%v", removed, err)
	}
}

func TestScopedStorage_InfoPassesThrough(t *testing.T) {
	scoped, err := NewScopedStorage(NewMemoryStorage(), "profiles", "owner-1")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}
	info, err := scoped.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Type != "memory" || !info.IsAvailable {
		t.Fatalf("info = %+v", info)
	}
}
