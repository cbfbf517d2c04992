package interfaces

import (
	"context"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// Unsubscribe stops the delivery of change notifications
type Unsubscribe func()

// RowStore is the persistent table-oriented store holding every clinic table.
//
// Implementations report a missing id as a not-found error, a unique key
// violation as a conflict error (nothing written), and any other backend
// failure as a store error wrapping the backend cause.
type RowStore interface {
	// List returns the rows of table matching q, in q's order
	List(ctx context.Context, table string, q *types.Query) ([]types.Row, error)

	// Insert stores row and returns it as persisted. The store assigns id and
	// created_at when the row leaves them unset.
	Insert(ctx context.Context, table string, row types.Row) (types.Row, error)

	// Update applies patch to the row identified by id and returns the result
	Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error)

	// UpdateIf applies patch only while the row still matches guard's
	// conditions; the check and the write are atomic. A row that exists but
	// no longer matches is reported as a conflict error and left unchanged.
	UpdateIf(ctx context.Context, table, id string, guard *types.Query, patch types.Row) (types.Row, error)

	// Delete removes the row identified by id
	Delete(ctx context.Context, table, id string) error

	// Subscribe registers onChange for every mutation of table. Payloads are
	// advisory; consumers re-list.
	Subscribe(table string, onChange func(types.Change)) (Unsubscribe, error)
}
