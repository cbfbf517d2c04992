package rowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mehdi-it48/medisync-lite/pkg/database"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// ChangeChannel is the NOTIFY channel fed by the change_notify triggers
const ChangeChannel = "table_changes"

const uniqueViolation = "23505"

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var sqlOperators = map[types.Operator]string{
	types.OpEq:  "=",
	types.OpNeq: "<>",
	types.OpGt:  ">",
	types.OpGte: ">=",
	types.OpLt:  "<",
	types.OpLte: "<=",
}

// PostgresStore implements RowStore on top of a Postgres database
type PostgresStore struct {
	db     *database.DB
	logger *logger.Logger

	mu       sync.RWMutex
	subs     map[string]map[int]func(types.Change)
	nextID   int
	listener *pq.Listener
	done     chan struct{}
}

var _ interfaces.RowStore = (*PostgresStore)(nil)

// NewPostgresStore creates a row store backed by db
func NewPostgresStore(db *database.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log,
		subs:   make(map[string]map[int]func(types.Change)),
	}
}

// List returns the rows of table matching q
func (s *PostgresStore) List(ctx context.Context, table string, q *types.Query) ([]types.Row, error) {
	if q == nil {
		q = types.NewQuery()
	}
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logOp(ctx, "select", table, start, 0, false)
		return nil, translateError("list", table, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		s.logOp(ctx, "select", table, start, 0, false)
		return nil, types.NewStoreError("list", table, err)
	}
	s.logOp(ctx, "select", table, start, int64(len(out)), true)
	return out, nil
}

// Insert inserts row and returns it as stored, including defaults
func (s *PostgresStore) Insert(ctx context.Context, table string, row types.Row) (types.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	columns := sortedColumns(row)
	var query string
	args := make([]interface{}, 0, len(columns))
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", pq.QuoteIdentifier(table))
	} else {
		quoted := make([]string, 0, len(columns))
		placeholders := make([]string, 0, len(columns))
		for i, col := range columns {
			if err := checkIdentifier(col); err != nil {
				return nil, err
			}
			quoted = append(quoted, pq.QuoteIdentifier(col))
			placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
			args = append(args, row[col])
		}
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			pq.QuoteIdentifier(table),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
		)
	}

	return s.returningOne(ctx, "insert", table, "", query, args)
}

// Update applies patch to the row identified by id
func (s *PostgresStore) Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error) {
	return s.update(ctx, table, id, nil, patch)
}

// UpdateIf applies patch in a single UPDATE whose WHERE clause carries
// guard's conditions. When nothing matched, a follow-up lookup tells a
// missing row from a guarded one.
func (s *PostgresStore) UpdateIf(ctx context.Context, table, id string, guard *types.Query, patch types.Row) (types.Row, error) {
	if guard == nil {
		guard = types.NewQuery()
	}
	row, err := s.update(ctx, table, id, guard.Where, patch)
	if !types.IsNotFound(err) || len(guard.Where) == 0 {
		return row, err
	}

	var found string
	query := fmt.Sprintf("SELECT id FROM %s WHERE id = $1", pq.QuoteIdentifier(table))
	switch lookupErr := s.db.QueryRowContext(ctx, query, id).Scan(&found); {
	case errors.Is(lookupErr, sql.ErrNoRows):
		return nil, err
	case lookupErr != nil:
		return nil, translateError("update", table, lookupErr)
	}
	return nil, rowChanged(table, id)
}

func (s *PostgresStore) update(ctx context.Context, table, id string, guard []types.Condition, patch types.Row) (types.Row, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	for _, col := range sortedColumns(patch) {
		if col == "id" {
			continue
		}
		if err := checkIdentifier(col); err != nil {
			return nil, err
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), argIndex))
		args = append(args, patch[col])
		argIndex++
	}

	where := fmt.Sprintf("id = $%d", argIndex)
	args = append(args, id)
	argIndex++

	clauses, guardArgs, err := buildConditions(guard, argIndex)
	if err != nil {
		return nil, err
	}
	for _, clause := range clauses {
		where += " AND " + clause
	}
	args = append(args, guardArgs...)

	var query string
	if len(setParts) == 0 {
		query = fmt.Sprintf("SELECT * FROM %s WHERE %s", pq.QuoteIdentifier(table), where)
	} else {
		query = fmt.Sprintf(
			"UPDATE %s SET %s WHERE %s RETURNING *",
			pq.QuoteIdentifier(table),
			strings.Join(setParts, ", "),
			where,
		)
	}

	return s.returningOne(ctx, "update", table, id, query, args)
}

// Delete removes the row identified by id
func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	start := time.Now()
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(table))
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		s.logOp(ctx, "delete", table, start, 0, false)
		return translateError("delete", table, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStoreError("delete", table, err)
	}
	s.logOp(ctx, "delete", table, start, rowsAffected, true)

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("%s row not found: %s", table, id))
	}
	return nil
}

// Subscribe registers onChange for mutations of table. The first
// subscription starts a LISTEN on ChangeChannel.
func (s *PostgresStore) Subscribe(table string, onChange func(types.Change)) (interfaces.Unsubscribe, error) {
	if onChange == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "change callback is required", nil)
	}
	if err := s.ensureListener(); err != nil {
		return nil, err
	}
	return s.addSubscriber(table, onChange), nil
}

// Close stops the change listener
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	close(s.done)
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *PostgresStore) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	connStr := s.db.ConnString()
	if connStr == "" {
		return types.NewInternalError(types.ErrCodeInternalError, "change notifications need a dedicated connection string", nil)
	}

	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.WithComponent("rowstore").WithError(err).Warn("Change listener event")
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		listener.Close()
		return types.NewStoreError("listen", ChangeChannel, err)
	}

	s.listener = listener
	s.done = make(chan struct{})
	go s.listen(listener, s.done)

	s.logger.WithComponent("rowstore").Infof("Listening for row changes on %s", ChangeChannel)
	return nil
}

func (s *PostgresStore) listen(listener *pq.Listener, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been lost, so every
				// subscriber must re-list.
				s.broadcastReset()
				continue
			}
			s.dispatch(n.Extra)
		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

func (s *PostgresStore) dispatch(payload string) {
	var change types.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		s.logger.WithComponent("rowstore").WithError(err).Warn("Discarding malformed change payload")
		return
	}
	for _, cb := range s.callbacks(change.Table) {
		cb(change)
	}
}

func (s *PostgresStore) broadcastReset() {
	s.mu.RLock()
	tables := make([]string, 0, len(s.subs))
	for table := range s.subs {
		tables = append(tables, table)
	}
	s.mu.RUnlock()

	for _, table := range tables {
		for _, cb := range s.callbacks(table) {
			cb(types.Change{Table: table})
		}
	}
}

func (s *PostgresStore) addSubscriber(table string, onChange func(types.Change)) interfaces.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[table] == nil {
		s.subs[table] = make(map[int]func(types.Change))
	}
	id := s.nextID
	s.nextID++
	s.subs[table][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[table], id)
			s.mu.Unlock()
		})
	}
}

func (s *PostgresStore) callbacks(table string) []func(types.Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]func(types.Change), 0, len(s.subs[table]))
	for _, cb := range s.subs[table] {
		out = append(out, cb)
	}
	return out
}

func (s *PostgresStore) returningOne(ctx context.Context, op, table, id, query string, args []interface{}) (types.Row, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logOp(ctx, op, table, start, 0, false)
		return nil, translateError(op, table, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		s.logOp(ctx, op, table, start, 0, false)
		return nil, translateError(op, table, err)
	}
	if len(out) == 0 {
		s.logOp(ctx, op, table, start, 0, true)
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("%s row not found: %s", table, id))
	}
	s.logOp(ctx, op, table, start, 1, true)
	return out[0], nil
}

func (s *PostgresStore) logOp(ctx context.Context, op, table string, start time.Time, rowsAffected int64, success bool) {
	s.logger.DatabaseOperation(ctx, op, table, time.Since(start).Milliseconds(), rowsAffected, success)
}

func buildSelect(table string, q *types.Query) (string, []interface{}, error) {
	if err := checkIdentifier(table); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", pq.QuoteIdentifier(table))

	clauses, args, err := buildConditions(q.Where, 1)
	if err != nil {
		return "", nil, err
	}
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	if len(q.OrderBy) > 0 {
		keys := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			if err := checkIdentifier(o.Column); err != nil {
				return "", nil, err
			}
			dir := "ASC NULLS FIRST"
			if o.Desc {
				dir = "DESC NULLS LAST"
			}
			keys = append(keys, pq.QuoteIdentifier(o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	return b.String(), args, nil
}

// buildConditions renders conditions as SQL clauses numbering placeholders
// from argIndex
func buildConditions(conditions []types.Condition, argIndex int) ([]string, []interface{}, error) {
	clauses := make([]string, 0, len(conditions))
	args := []interface{}{}
	for _, cond := range conditions {
		if err := checkIdentifier(cond.Column); err != nil {
			return nil, nil, err
		}
		col := pq.QuoteIdentifier(cond.Column)

		if cond.Value == nil {
			switch cond.Op {
			case types.OpEq:
				clauses = append(clauses, col+" IS NULL")
			case types.OpNeq:
				clauses = append(clauses, col+" IS NOT NULL")
			default:
				return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput,
					fmt.Sprintf("operator %s cannot compare with NULL", cond.Op), nil)
			}
			continue
		}

		op, ok := sqlOperators[cond.Op]
		if !ok {
			return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("unknown operator: %s", cond.Op), nil)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, op, argIndex))
		args = append(args, cond.Value)
		argIndex++
	}
	return clauses, args, nil
}

// scanRows reads every row into column maps, normalizing driver values to
// the shapes the in-memory store holds.
func scanRows(rows *sql.Rows) ([]types.Row, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	var out []types.Row
	for rows.Next() {
		values := make([]interface{}, len(columnTypes))
		ptrs := make([]interface{}, len(columnTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(types.Row, len(columnTypes))
		for i, ct := range columnTypes {
			v, err := normalizeValue(ct.DatabaseTypeName(), values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", ct.Name(), err)
			}
			row[ct.Name()] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(dbType string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL":
		switch n := v.(type) {
		case []byte:
			return strconv.ParseFloat(string(n), 64)
		case string:
			return strconv.ParseFloat(n, 64)
		}
	case "DATE":
		if t, ok := v.(time.Time); ok {
			return t.Format(types.DateLayout), nil
		}
	case "TIME":
		var s string
		switch t := v.(type) {
		case []byte:
			s = string(t)
		case string:
			s = t
		case time.Time:
			return t.Format(types.TimeLayout), nil
		}
		if len(s) >= len(types.TimeLayout) {
			return s[:len(types.TimeLayout)], nil
		}
		return s, nil
	}

	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func translateError(op, table string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return types.NewConflictError(
			types.ErrCodeConflict,
			fmt.Sprintf("duplicate key %s in %s", pqErr.Constraint, table),
			err,
		)
	}
	return types.NewStoreError(op, table, err)
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("invalid identifier: %q", name), nil)
	}
	return nil
}

func sortedColumns(row types.Row) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
