package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KVStore keeps namespaced values in changelog_kv_entries. One row per
// (namespace, key), enforced by a unique index.
type KVStore struct {
	db   *bun.DB
	repo repository.Repository[*kvRecord]
	Now  func() time.Time
}

func NewKVStore(db *bun.DB) (*KVStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*kvRecord](db, kvHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid kv repository wiring: %w", err)
		}
	}
	return &KVStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *KVStore) Get(ctx context.Context, namespace string, key string) ([]byte, bool, error) {
	if s == nil || s.repo == nil {
		return nil, false, fmt.Errorf("sqlstore: kv store is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return nil, false, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("namespace", "=", namespace),
		repository.SelectBy("key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), records[0].Value...), true, nil
}

func (s *KVStore) Set(ctx context.Context, namespace string, key string, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: kv store is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return err
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findKVRecordTx(ctx, tx, namespace, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &kvRecord{
				ID:        uuid.NewString(),
				Namespace: namespace,
				Key:       key,
				Value:     append([]byte(nil), value...),
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		record.Value = append([]byte(nil), value...)
		record.UpdatedAt = now
		_, err = tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

// SetIfAbsent inserts the value only when no row holds the key. The unique
// index decides between concurrent callers.
func (s *KVStore) SetIfAbsent(ctx context.Context, namespace string, key string, value []byte) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: kv store is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return false, err
	}
	now := s.now()
	record := &kvRecord{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *KVStore) Delete(ctx context.Context, namespace string, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: kv store is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("namespace = ?", namespace).
		Where("key = ?", key).
		Exec(ctx)
	return err
}

func (s *KVStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func findKVRecordTx(ctx context.Context, tx bun.Tx, namespace string, key string) (*kvRecord, error) {
	record := &kvRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.namespace = ?", namespace).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeKVKey(namespace string, key string) (string, string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", "", fmt.Errorf("sqlstore: namespace and key are required")
	}
	return namespace, key, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var (
	_ core.KVStore    = (*KVStore)(nil)
	_ core.KVReserver = (*KVStore)(nil)
)
