// Package storage contains in-memory versions of the external collaborators:
// tabular store, audit log, rate counters and blob storage. The server falls
// back to them when Postgres, Redis or S3 are not configured, and the
// pipeline tests use them to inspect side effects.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/FormSink/internal/model"
)

var (
	// ErrNotFound is returned for unknown tables and objects.
	ErrNotFound = errors.New("not found")
)

type table struct {
	columns []model.Column
	rows    [][]string
}

// MemoryStore is an in-memory tabular store guarded by an RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*table)}
}

// Columns returns a copy of the column list for name; empty for a new table.
func (m *MemoryStore) Columns(_ context.Context, name string) ([]model.Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, nil
	}
	out := make([]model.Column, len(t.columns))
	copy(out, t.columns)
	return out, nil
}

// AppendColumns adds cols to the end of the table schema. Names that already
// exist are skipped so a racing caller cannot create duplicates.
func (m *MemoryStore) AppendColumns(_ context.Context, name string, cols []model.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	existing := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		existing[c.Name] = true
	}
	for _, c := range cols {
		if existing[c.Name] {
			continue
		}
		existing[c.Name] = true
		t.columns = append(t.columns, c)
	}
	return nil
}

// AppendRow adds cells as the next row of the table.
func (m *MemoryStore) AppendRow(_ context.Context, name string, cells []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := make([]string, len(cells))
	copy(row, cells)
	t := m.table(name)
	t.rows = append(t.rows, row)
	return nil
}

// Rows returns a copy of every row appended to name.
func (m *MemoryStore) Rows(name string) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// table must be called with the write lock held.
func (m *MemoryStore) table(name string) *table {
	t, ok := m.tables[name]
	if !ok {
		t = &table{}
		m.tables[name] = t
	}
	return t
}

// LogEntry is one audit line.
type LogEntry struct {
	Table   string
	Message string
	At      time.Time
}

// MemoryLog collects audit lines.
type MemoryLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewMemoryLog constructs a MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records message against table.
func (l *MemoryLog) Append(_ context.Context, table, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Table: table, Message: message, At: time.Now().UTC()})
	return nil
}

// Entries returns a copy of the collected lines.
func (l *MemoryLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

type counterEntry struct {
	value   int64
	expires time.Time
}

// MemoryCounter is an expiring counter map with the same semantics as the
// Redis INCR + EXPIRE pair.
type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]counterEntry
	now    func() time.Time
}

// NewMemoryCounter constructs a MemoryCounter using the wall clock.
func NewMemoryCounter() *MemoryCounter {
	return NewMemoryCounterWithClock(time.Now)
}

// NewMemoryCounterWithClock constructs a MemoryCounter using now for expiry.
func NewMemoryCounterWithClock(now func() time.Time) *MemoryCounter {
	return &MemoryCounter{values: make(map[string]counterEntry), now: now}
}

// Incr increments key and returns the new value. A non-zero ttl sets the key
// to expire ttl from now.
func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e, ok := c.values[key]
	if ok && !e.expires.IsZero() && !now.Before(e.expires) {
		e = counterEntry{}
	}
	e.value++
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	c.values[key] = e
	return e.value, nil
}

// Get returns the live value of key, or 0.
func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.values[key]
	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		return 0, nil
	}
	return e.value, nil
}

// Delete removes key.
func (c *MemoryCounter) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// Object is a blob held by MemoryBlobs.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryBlobs is an in-memory blob store.
type MemoryBlobs struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

// NewMemoryBlobs constructs MemoryBlobs whose view links are baseURL/key.
func NewMemoryBlobs(baseURL string) *MemoryBlobs {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryBlobs{baseURL: baseURL, objects: make(map[string]Object)}
}

// Store saves data under key and returns its view link.
func (b *MemoryBlobs) Store(_ context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return b.baseURL + "/" + key, nil
}

// URL returns the direct link for key.
func (b *MemoryBlobs) URL(_ context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[key]; !ok {
		return "", ErrNotFound
	}
	return b.baseURL + "/" + key, nil
}

// Get returns a copy of the object stored under key.
func (b *MemoryBlobs) Get(key string) (Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

// Keys returns every stored key.
func (b *MemoryBlobs) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	return out
}
