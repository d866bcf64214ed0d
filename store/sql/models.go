package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	namespacePersistent = "persistent"
	namespaceSession    = "session"
)

type kvRecord struct {
	bun.BaseModel `bun:"table:profile_kv_entries,alias:pke"`

	ID        string    `bun:"id,pk"`
	Namespace string    `bun:"namespace,notnull"`
	EntryKey  string    `bun:"entry_key,notnull"`
	Value     []byte    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
