// Package rowstore provides the clinic row store implementations: an
// in-memory store for development and tests, and a Postgres store.
package rowstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for server-assigned created_at values
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithUniqueKey declares a composite unique key on table
func WithUniqueKey(table string, columns ...string) MemoryOption {
	return func(s *MemoryStore) {
		s.unique[table] = append(s.unique[table], columns)
	}
}

// ClinicUniqueKeys mirrors the unique indexes of the Postgres schema
func ClinicUniqueKeys() MemoryOption {
	return func(s *MemoryStore) {
		WithUniqueKey(types.TableQueue, "queue_date", "numero_ordre")(s)
		WithUniqueKey(types.TableMedicalRecords, "patient_id")(s)
	}
}

// MemoryStore is a goroutine-safe in-memory RowStore. Rows keep insertion
// order, which is the order returned by an unordered List.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]types.Row
	unique map[string][][]string
	now    func() time.Time

	subMu  sync.RWMutex
	subs   map[string]map[int]func(types.Change)
	nextID int
}

var _ interfaces.RowStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tables: make(map[string][]types.Row),
		unique: make(map[string][][]string),
		now:    time.Now,
		subs:   make(map[string]map[int]func(types.Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns copies of the rows of table matching q
func (s *MemoryStore) List(ctx context.Context, table string, q *types.Query) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreError("list", table, err)
	}
	if q == nil {
		q = types.NewQuery()
	}

	s.mu.RLock()
	var out []types.Row
	for _, row := range s.tables[table] {
		if matches(row, q.Where) {
			out = append(out, cloneRow(row))
		}
	}
	s.mu.RUnlock()

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareNullable(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert stores a copy of row, assigning id and created_at when absent
func (s *MemoryStore) Insert(ctx context.Context, table string, row types.Row) (types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreError("insert", table, err)
	}

	stored := cloneRow(row)
	if stored.ID() == "" {
		stored["id"] = uuid.New().String()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = s.now().UTC()
	}

	s.mu.Lock()
	for _, existing := range s.tables[table] {
		if existing.ID() == stored.ID() {
			s.mu.Unlock()
			return nil, types.NewConflictError(types.ErrCodeConflict, fmt.Sprintf("duplicate id %s in %s", stored.ID(), table), nil)
		}
	}
	if err := s.checkUnique(table, stored, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.tables[table] = append(s.tables[table], stored)
	s.mu.Unlock()

	s.publish(types.Change{Table: table, Kind: types.ChangeInsert, ID: stored.ID()})
	return cloneRow(stored), nil
}

// Update merges patch into the row identified by id
func (s *MemoryStore) Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error) {
	return s.update(ctx, table, id, nil, patch)
}

// UpdateIf merges patch into the row identified by id when the row matches
// guard's conditions
func (s *MemoryStore) UpdateIf(ctx context.Context, table, id string, guard *types.Query, patch types.Row) (types.Row, error) {
	if guard == nil {
		guard = types.NewQuery()
	}
	return s.update(ctx, table, id, guard.Where, patch)
}

func (s *MemoryStore) update(ctx context.Context, table, id string, guard []types.Condition, patch types.Row) (types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreError("update", table, err)
	}

	s.mu.Lock()
	idx := s.indexOf(table, id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("%s row not found: %s", table, id))
	}
	if !matches(s.tables[table][idx], guard) {
		s.mu.Unlock()
		return nil, rowChanged(table, id)
	}
	updated := cloneRow(s.tables[table][idx])
	for k, v := range patch {
		if k == "id" {
			continue
		}
		updated[k] = v
	}
	if err := s.checkUnique(table, updated, id); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.tables[table][idx] = updated
	s.mu.Unlock()

	s.publish(types.Change{Table: table, Kind: types.ChangeUpdate, ID: id})
	return cloneRow(updated), nil
}

// Delete removes the row identified by id
func (s *MemoryStore) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return types.NewStoreError("delete", table, err)
	}

	s.mu.Lock()
	idx := s.indexOf(table, id)
	if idx < 0 {
		s.mu.Unlock()
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("%s row not found: %s", table, id))
	}
	rows := s.tables[table]
	s.tables[table] = append(rows[:idx:idx], rows[idx+1:]...)
	s.mu.Unlock()

	s.publish(types.Change{Table: table, Kind: types.ChangeDelete, ID: id})
	return nil
}

// Subscribe registers onChange for every mutation of table. Callbacks run
// synchronously on the mutating goroutine after the store lock is released.
func (s *MemoryStore) Subscribe(table string, onChange func(types.Change)) (interfaces.Unsubscribe, error) {
	if onChange == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "change callback is required", nil)
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs[table] == nil {
		s.subs[table] = make(map[int]func(types.Change))
	}
	id := s.nextID
	s.nextID++
	s.subs[table][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs[table], id)
			s.subMu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) publish(change types.Change) {
	s.subMu.RLock()
	callbacks := make([]func(types.Change), 0, len(s.subs[change.Table]))
	for _, cb := range s.subs[change.Table] {
		callbacks = append(callbacks, cb)
	}
	s.subMu.RUnlock()

	for _, cb := range callbacks {
		cb(change)
	}
}

func (s *MemoryStore) indexOf(table, id string) int {
	for i, row := range s.tables[table] {
		if row.ID() == id {
			return i
		}
	}
	return -1
}

// checkUnique must be called with mu held. skipID excludes the row being updated.
func (s *MemoryStore) checkUnique(table string, candidate types.Row, skipID string) error {
	for _, key := range s.unique[table] {
		if !hasAll(candidate, key) {
			continue
		}
		for _, existing := range s.tables[table] {
			if skipID != "" && existing.ID() == skipID {
				continue
			}
			if sameKey(existing, candidate, key) {
				return types.NewConflictError(
					types.ErrCodeConflict,
					fmt.Sprintf("duplicate key (%s) in %s", strings.Join(key, ", "), table),
					nil,
				)
			}
		}
	}
	return nil
}

func rowChanged(table, id string) error {
	return types.NewConflictError(types.ErrCodeRowChanged, fmt.Sprintf("%s row %s no longer matches the update guard", table, id), nil)
}

func hasAll(row types.Row, columns []string) bool {
	for _, c := range columns {
		if row[c] == nil {
			return false
		}
	}
	return true
}

func sameKey(a, b types.Row, columns []string) bool {
	for _, c := range columns {
		if cmp, ok := compareValues(a[c], b[c]); !ok || cmp != 0 {
			return false
		}
	}
	return true
}

func matches(row types.Row, conditions []types.Condition) bool {
	for _, cond := range conditions {
		v := row[cond.Column]
		if v == nil || cond.Value == nil {
			// SQL semantics: only eq/neq against NULL are meaningful
			switch cond.Op {
			case types.OpEq:
				if v != nil || cond.Value != nil {
					return false
				}
			case types.OpNeq:
				if v == nil && cond.Value == nil {
					return false
				}
			default:
				return false
			}
			continue
		}
		c, ok := compareValues(v, cond.Value)
		if !ok {
			return false
		}
		switch cond.Op {
		case types.OpEq:
			if c != 0 {
				return false
			}
		case types.OpNeq:
			if c == 0 {
				return false
			}
		case types.OpGt:
			if c <= 0 {
				return false
			}
		case types.OpGte:
			if c < 0 {
				return false
			}
		case types.OpLt:
			if c >= 0 {
				return false
			}
		case types.OpLte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareNullable orders NULLs first
func compareNullable(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

// compareValues compares two column values of the same kind. ok is false
// when the values are not comparable.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok || av != bv {
			return 1, ok
		}
		return 0, true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneRow(row types.Row) types.Row {
	out := make(types.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
