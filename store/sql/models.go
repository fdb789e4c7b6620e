package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type kvRecord struct {
	bun.BaseModel `bun:"table:changelog_kv_entries,alias:kv"`

	ID        string    `bun:"id,pk"`
	Namespace string    `bun:"namespace,notnull"`
	Key       string    `bun:"key,notnull"`
	Value     []byte    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
