// Package tablecache keeps in-memory mirrors of the help queue tables,
// loaded once and then kept current from Postgres change notifications.
package tablecache

import (
	"sort"
	"sync"
)

// Row is implemented by every mirrored model.
type Row interface {
	RowID() int64
}

// ChangeType mirrors the trigger operation that produced a change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	// ChangeResync is emitted after a full reload replaced the table contents.
	ChangeResync ChangeType = "RESYNC"
)

// Change is delivered to table subscribers.
type Change[T Row] struct {
	Type ChangeType
	Row  T
}

// Table is a concurrency-safe mirror of one table keyed by id.
type Table[T Row] struct {
	name   string
	retain bool

	mu     sync.RWMutex
	rows   map[int64]T
	ready  bool
	subs   map[int]func(Change[T])
	nextID int
}

// NewTable builds a table that retains every row it sees.
func NewTable[T Row](name string) *Table[T] {
	return &Table[T]{name: name, retain: true, rows: make(map[int64]T), subs: make(map[int]func(Change[T]))}
}

// NewStream builds a table that only fans out changes. It is ready from the
// start and never holds rows; readers list history from the database.
func NewStream[T Row](name string) *Table[T] {
	t := NewTable[T](name)
	t.retain = false
	t.ready = true
	return t
}

// Name returns the mirrored table name.
func (t *Table[T]) Name() string { return t.name }

// Ready reports whether the first snapshot has been loaded.
func (t *Table[T]) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Load replaces the contents with a full snapshot.
func (t *Table[T]) Load(rows []T) {
	t.mu.Lock()
	if t.retain {
		t.rows = make(map[int64]T, len(rows))
		for _, r := range rows {
			t.rows[r.RowID()] = r
		}
	}
	t.ready = true
	subs := t.subscribers()
	t.mu.Unlock()

	var zero T
	notify(subs, Change[T]{Type: ChangeResync, Row: zero})
}

// Apply folds a single change into the mirror. Inserts and updates are
// upserts so duplicate delivery is harmless.
func (t *Table[T]) Apply(typ ChangeType, row T) {
	t.mu.Lock()
	if t.retain {
		switch typ {
		case ChangeInsert, ChangeUpdate:
			t.rows[row.RowID()] = row
		case ChangeDelete:
			delete(t.rows, row.RowID())
		}
	}
	subs := t.subscribers()
	t.mu.Unlock()

	notify(subs, Change[T]{Type: typ, Row: row})
}

// Get returns the row with id.
func (t *Table[T]) Get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

// Rows returns a copy of all rows ordered by id.
func (t *Table[T]) Rows() []T {
	return t.Filter(nil)
}

// Filter returns a copy of the rows matching keep, ordered by id.
func (t *Table[T]) Filter(keep func(T) bool) []T {
	t.mu.RLock()
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RowID() < out[j].RowID() })
	return out
}

// Len returns the number of retained rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Subscribe registers fn for every subsequent change. Callbacks run on the
// goroutine applying the change and must not block.
func (t *Table[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

func (t *Table[T]) subscribers() []func(Change[T]) {
	if len(t.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Change[T]), 0, len(ids))
	for _, id := range ids {
		out = append(out, t.subs[id])
	}
	return out
}

func notify[T Row](subs []func(Change[T]), c Change[T]) {
	for _, fn := range subs {
		fn(c)
	}
}
