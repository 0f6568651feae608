package model

import "time"

// DefaultKVTable is the table the mobile backend keeps user documents in.
const DefaultKVTable = "kv_store"

// KVEntry is a raw row of the key-value table.
type KVEntry struct {
	Key       string    `json:"key" gorm:"column:key;primaryKey"`
	Value     []byte    `json:"value" gorm:"column:value;type:jsonb;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}
