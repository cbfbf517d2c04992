package types

import (
	"encoding/json"
	"fmt"
)

// Table names of the clinic row store
const (
	TablePatients       = "patients"
	TableAppointments   = "appointments"
	TableQueue          = "queue"
	TableInvoices       = "invoices"
	TableMedicalRecords = "medical_records"
	TableDocuments      = "documents"
	TableQueueDays      = "queue_days"
)

// Row is a single table row keyed by column name
type Row map[string]interface{}

// ID returns the row's id column as a string
func (r Row) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// Decode copies the row into dst, matching columns against dst's json tags
func (r Row) Decode(dst interface{}) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode row: %w", err)
	}
	return nil
}

// Operator is a comparison applied by a Condition
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// Condition filters rows on a single column
type Condition struct {
	Column string
	Op     Operator
	Value  interface{}
}

// Order sorts rows on a single column
type Order struct {
	Column string
	Desc   bool
}

// Query describes a filtered, ordered read of one table. The zero value
// selects every row in store order.
type Query struct {
	Where   []Condition
	OrderBy []Order
	Limit   int
}

// NewQuery returns an empty query
func NewQuery() *Query {
	return &Query{}
}

// Eq adds an equality condition
func (q *Query) Eq(column string, value interface{}) *Query {
	return q.where(column, OpEq, value)
}

// Neq adds an inequality condition
func (q *Query) Neq(column string, value interface{}) *Query {
	return q.where(column, OpNeq, value)
}

// Gte adds a greater-or-equal condition
func (q *Query) Gte(column string, value interface{}) *Query {
	return q.where(column, OpGte, value)
}

// Lt adds a strictly-less condition
func (q *Query) Lt(column string, value interface{}) *Query {
	return q.where(column, OpLt, value)
}

// Lte adds a less-or-equal condition
func (q *Query) Lte(column string, value interface{}) *Query {
	return q.where(column, OpLte, value)
}

// OrderAsc appends an ascending sort key
func (q *Query) OrderAsc(column string) *Query {
	q.OrderBy = append(q.OrderBy, Order{Column: column})
	return q
}

// OrderDesc appends a descending sort key
func (q *Query) OrderDesc(column string) *Query {
	q.OrderBy = append(q.OrderBy, Order{Column: column, Desc: true})
	return q
}

// Take limits the number of rows returned
func (q *Query) Take(n int) *Query {
	q.Limit = n
	return q
}

func (q *Query) where(column string, op Operator, value interface{}) *Query {
	q.Where = append(q.Where, Condition{Column: column, Op: op, Value: value})
	return q
}

// ChangeKind identifies the mutation carried by a Change
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is an advisory notification that a row of Table was mutated.
// Consumers re-list instead of merging it.
type Change struct {
	Table string     `json:"table"`
	Kind  ChangeKind `json:"kind"`
	ID    string     `json:"id,omitempty"`
}
