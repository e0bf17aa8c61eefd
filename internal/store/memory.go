package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default for tests
// and for ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record)}
}

var _ Store = (*MemoryStore)(nil)

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, notFound(key)
	}
	return cloneRecord(rec), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, q Query) ([]Record, error) {
	if err := ValidateCollection(q.Collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range m.records {
		if q.matches(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out)
	return out, nil
}

// Insert implements Store.
func (m *MemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Key()
	if _, exists := m.records[key]; exists {
		return Record{}, alreadyExists(key)
	}
	rec = stamp(rec, timeNow())
	m.records[key] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Key()
	existing, ok := m.records[key]
	if !ok {
		return Record{}, notFound(key)
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	rec = stamp(rec, timeNow())
	m.records[key] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(_ context.Context, rec Record) (Record, error) {
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Key()
	if existing, ok := m.records[key]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	rec = stamp(rec, timeNow())
	m.records[key] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// DeleteProject implements Store.
func (m *MemoryStore) DeleteProject(_ context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.records {
		if key.ProjectID == projectID {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func cloneRecord(rec Record) Record {
	if rec.Content != nil {
		rec.Content = append([]byte(nil), rec.Content...)
	}
	if rec.Sidecar != nil {
		rec.Sidecar = append([]byte(nil), rec.Sidecar...)
	}
	if rec.ApprovedAt != nil {
		t := *rec.ApprovedAt
		rec.ApprovedAt = &t
	}
	return rec
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		if recs[i].StepKey != recs[j].StepKey {
			return recs[i].StepKey < recs[j].StepKey
		}
		return recs[i].ScopeKey < recs[j].ScopeKey
	})
}
