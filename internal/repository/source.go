package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/quocanhngo/habitnudge/internal/model"
)

// UserRecordSource reads the full set of user records once per run.
type UserRecordSource interface {
	ListAllUserRecords(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the decoded result of one full read of the store.
type Snapshot struct {
	Records []model.UserRecord
	// Skipped holds keys whose value could not be decoded.
	Skipped []string
}

// Scanned is the number of rows the store returned.
func (s *Snapshot) Scanned() int {
	return len(s.Records) + len(s.Skipped)
}

// decodeRows turns raw (key, value) pairs into a Snapshot, skipping malformed rows.
func decodeRows(entries []model.KVEntry) *Snapshot {
	snap := &Snapshot{Records: make([]model.UserRecord, 0, len(entries))}
	for _, e := range entries {
		rec, err := model.DecodeUserRecord(e.Key, e.Value)
		if err != nil {
			snap.Skipped = append(snap.Skipped, e.Key)
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap
}

// StaticSource serves a fixed set of records. Used by dry runs over fixture
// files and by tests.
type StaticSource struct {
	Entries []model.KVEntry
	Err     error
}

// NewStaticSource builds a source from already-decoded records.
func NewStaticSource(records ...model.UserRecord) (*StaticSource, error) {
	s := &StaticSource{}
	for _, r := range records {
		raw, err := r.EncodeValue()
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, model.KVEntry{Key: r.ID, Value: raw})
	}
	return s, nil
}

// LoadFixtureFile reads a JSON object of key -> user document, the same shape
// the key-value table holds, into a StaticSource.
func LoadFixtureFile(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs map[string]json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}

	s := &StaticSource{Entries: make([]model.KVEntry, 0, len(docs))}
	for key, doc := range docs {
		s.Entries = append(s.Entries, model.KVEntry{Key: key, Value: doc})
	}
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].Key < s.Entries[j].Key })
	return s, nil
}

// ListAllUserRecords implements UserRecordSource.
func (s *StaticSource) ListAllUserRecords(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return decodeRows(s.Entries), nil
}
