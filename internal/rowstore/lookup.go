package rowstore

import (
	"context"
	"fmt"

	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// Get fetches the row of table with the given id
func Get(ctx context.Context, store interfaces.RowStore, table, id string) (types.Row, error) {
	rows, err := store.List(ctx, table, types.NewQuery().Eq("id", id).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("%s row not found: %s", table, id))
	}
	return rows[0], nil
}

// Index fetches the rows of table whose ids are listed, keyed by id.
// Missing ids are absent from the result; duplicates and blanks are skipped.
func Index(ctx context.Context, store interfaces.RowStore, table string, ids []string) (map[string]types.Row, error) {
	out := make(map[string]types.Row, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}
		rows, err := store.List(ctx, table, types.NewQuery().Eq("id", id).Take(1))
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out[id] = rows[0]
		}
	}
	return out, nil
}

// PatientSummaries resolves the display projection of the given patients
func PatientSummaries(ctx context.Context, store interfaces.RowStore, ids []string) (map[string]*types.PatientSummary, error) {
	rows, err := Index(ctx, store, types.TablePatients, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.PatientSummary, len(rows))
	for id, row := range rows {
		var p types.Patient
		if err := row.Decode(&p); err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode patient", err)
		}
		out[id] = p.Summary()
	}
	return out, nil
}
