package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/quocanhngo/habitnudge/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepository reads user documents from the postgres key-value table
type KVRepository struct {
	db    *gorm.DB
	table string
}

func NewKVRepository(db *gorm.DB, table string) *KVRepository {
	if table == "" {
		table = model.DefaultKVTable
	}
	return &KVRepository{db: db, table: table}
}

// ListAllUserRecords selects every (key, value) pair in one query
func (r *KVRepository) ListAllUserRecords(ctx context.Context) (*Snapshot, error) {
	var entries []model.KVEntry
	err := r.db.WithContext(ctx).
		Table(r.table).
		Select("key", "value").
		Order("key").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table, err)
	}
	return decodeRows(entries), nil
}

// Upsert writes a user document, replacing any existing value (seeder only)
func (r *KVRepository) Upsert(ctx context.Context, rec model.UserRecord) error {
	raw, err := rec.EncodeValue()
	if err != nil {
		return err
	}
	return r.UpsertRaw(ctx, rec.ID, raw)
}

// UpsertRaw writes an arbitrary value under key
func (r *KVRepository) UpsertRaw(ctx context.Context, key string, raw []byte) error {
	entry := model.KVEntry{Key: key, Value: raw, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).
		Table(r.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
}
