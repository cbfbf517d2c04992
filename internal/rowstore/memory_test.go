package rowstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertAssignsIDAndCreatedAt(t *testing.T) {
	fixed := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return fixed }))

	row, err := store.Insert(context.Background(), types.TablePatients, types.Row{"nom": "Benali", "prenom": "Amine"})
	require.NoError(t, err)

	assert.NotEmpty(t, row.ID())
	assert.Equal(t, fixed, row["created_at"])
	assert.Equal(t, "Benali", row["nom"])
}

func TestMemoryStore_InsertKeepsCallerValues(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	row, err := store.Insert(context.Background(), types.TableQueue, types.Row{"id": "q-1", "created_at": at})
	require.NoError(t, err)

	assert.Equal(t, "q-1", row.ID())
	assert.Equal(t, at, row["created_at"])

	_, err = store.Insert(context.Background(), types.TableQueue, types.Row{"id": "q-1"})
	assert.True(t, types.IsConflict(err))
}

func TestMemoryStore_ReturnedRowsAreCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	row, err := store.Insert(ctx, types.TablePatients, types.Row{"nom": "A"})
	require.NoError(t, err)
	row["nom"] = "mutated"

	rows, err := store.List(ctx, types.TablePatients, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0]["nom"])
}

func TestMemoryStore_ListFiltersOrdersAndLimits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, r := range []types.Row{
		{"id": "a", "queue_date": "2024-03-13", "numero_ordre": 2},
		{"id": "b", "queue_date": "2024-03-13", "numero_ordre": 1},
		{"id": "c", "queue_date": "2024-03-14", "numero_ordre": 1},
		{"id": "d", "queue_date": "2024-03-13", "numero_ordre": 3},
	} {
		_, err := store.Insert(ctx, types.TableQueue, r)
		require.NoError(t, err)
	}

	rows, err := store.List(ctx, types.TableQueue, types.NewQuery().Eq("queue_date", "2024-03-13").OrderAsc("numero_ordre"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "d"}, ids(rows))

	rows, err = store.List(ctx, types.TableQueue, types.NewQuery().Eq("queue_date", "2024-03-13").OrderDesc("numero_ordre").Take(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(rows))

	rows, err = store.List(ctx, types.TableQueue, types.NewQuery().Gte("numero_ordre", 2).Lte("numero_ordre", 2.0))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(rows))
}

func TestMemoryStore_TimeRangeFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{day.Add(-time.Second), day, day.Add(23 * time.Hour), day.Add(24 * time.Hour)} {
		_, err := store.Insert(ctx, types.TableQueue, types.Row{"id": string(rune('a' + i)), "created_at": at})
		require.NoError(t, err)
	}

	rows, err := store.List(ctx, types.TableQueue, types.NewQuery().Gte("created_at", day).Lt("created_at", day.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(rows))
}

func TestMemoryStore_NullConditions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, types.TableQueue, types.Row{"id": "linked", "invoice_id": "inv-1"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, types.TableQueue, types.Row{"id": "unlinked", "invoice_id": nil})
	require.NoError(t, err)

	rows, err := store.List(ctx, types.TableQueue, types.NewQuery().Eq("invoice_id", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"unlinked"}, ids(rows))

	rows, err = store.List(ctx, types.TableQueue, types.NewQuery().Neq("invoice_id", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"linked"}, ids(rows))
}

func TestMemoryStore_UpdateMergesPatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, types.TableInvoices, types.Row{"id": "inv-1", "statut": "pending", "montant": 500.0})
	require.NoError(t, err)

	row, err := store.Update(ctx, types.TableInvoices, "inv-1", types.Row{"statut": "paid", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "inv-1", row.ID())
	assert.Equal(t, "paid", row["statut"])
	assert.Equal(t, 500.0, row["montant"])
}

func TestMemoryStore_MissingIDIsNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Update(ctx, types.TableQueue, "missing", types.Row{"status": "completed"})
	assert.True(t, types.IsNotFound(err))

	err = store.Delete(ctx, types.TableQueue, "missing")
	assert.True(t, types.IsNotFound(err))
}

func TestMemoryStore_UpdateIfGuardsTheWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, types.TableQueue, types.Row{"id": "q-1", "status": "waiting", "invoice_id": nil})
	require.NoError(t, err)

	row, err := store.UpdateIf(ctx, types.TableQueue, "q-1",
		types.NewQuery().Eq("status", "waiting"), types.Row{"status": "in_consultation"})
	require.NoError(t, err)
	assert.Equal(t, "in_consultation", row["status"])

	_, err = store.UpdateIf(ctx, types.TableQueue, "q-1",
		types.NewQuery().Eq("status", "waiting"), types.Row{"status": "cancelled"})
	assert.True(t, types.IsConflict(err))

	_, err = store.UpdateIf(ctx, types.TableQueue, "q-1",
		types.NewQuery().Eq("invoice_id", nil), types.Row{"invoice_id": "inv-1"})
	require.NoError(t, err)
	_, err = store.UpdateIf(ctx, types.TableQueue, "q-1",
		types.NewQuery().Eq("invoice_id", nil), types.Row{"invoice_id": "inv-2"})
	assert.True(t, types.IsConflict(err))

	_, err = store.UpdateIf(ctx, types.TableQueue, "missing", types.NewQuery(), types.Row{"status": "completed"})
	assert.True(t, types.IsNotFound(err))

	rows, err := store.List(ctx, types.TableQueue, nil)
	require.NoError(t, err)
	assert.Equal(t, "in_consultation", rows[0]["status"])
	assert.Equal(t, "inv-1", rows[0]["invoice_id"])
}

func TestMemoryStore_DeletePreservesOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Insert(ctx, types.TablePatients, types.Row{"id": id})
		require.NoError(t, err)
	}
	require.NoError(t, store.Delete(ctx, types.TablePatients, "b"))

	rows, err := store.List(ctx, types.TablePatients, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(rows))
}

func TestMemoryStore_UniqueKeys(t *testing.T) {
	store := NewMemoryStore(ClinicUniqueKeys())
	ctx := context.Background()

	_, err := store.Insert(ctx, types.TableQueue, types.Row{"id": "a", "queue_date": "2024-03-13", "numero_ordre": 1})
	require.NoError(t, err)

	_, err = store.Insert(ctx, types.TableQueue, types.Row{"id": "b", "queue_date": "2024-03-13", "numero_ordre": 1})
	assert.True(t, types.IsConflict(err))

	_, err = store.Insert(ctx, types.TableQueue, types.Row{"id": "c", "queue_date": "2024-03-14", "numero_ordre": 1})
	assert.NoError(t, err)

	// Updating a row onto its own key is not a conflict
	_, err = store.Update(ctx, types.TableQueue, "a", types.Row{"numero_ordre": 1, "status": "completed"})
	assert.NoError(t, err)

	rows, err := store.List(ctx, types.TableQueue, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMemoryStore_SubscribeAndUnsubscribe(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var mu sync.Mutex
	var got []types.Change
	unsubscribe, err := store.Subscribe(types.TableQueue, func(c types.Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	require.NoError(t, err)

	row, err := store.Insert(ctx, types.TableQueue, types.Row{"status": "waiting"})
	require.NoError(t, err)
	_, err = store.Update(ctx, types.TableQueue, row.ID(), types.Row{"status": "completed"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, types.TablePatients, types.Row{"nom": "other table"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, types.TableQueue, row.ID()))

	unsubscribe()
	unsubscribe()
	_, err = store.Insert(ctx, types.TableQueue, types.Row{"status": "waiting"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, types.ChangeInsert, got[0].Kind)
	assert.Equal(t, types.ChangeUpdate, got[1].Kind)
	assert.Equal(t, types.ChangeDelete, got[2].Kind)
	assert.Equal(t, row.ID(), got[2].ID)
}

func TestMemoryStore_SubscriberMayReadStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seen := make(chan int, 1)
	_, err := store.Subscribe(types.TableQueue, func(types.Change) {
		rows, _ := store.List(ctx, types.TableQueue, nil)
		seen <- len(rows)
	})
	require.NoError(t, err)

	_, err = store.Insert(ctx, types.TableQueue, types.Row{"status": "waiting"})
	require.NoError(t, err)
	assert.Equal(t, 1, <-seen)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.List(ctx, types.TableQueue, nil)
	assert.True(t, types.IsStoreError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentInserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Insert(ctx, types.TablePatients, types.Row{"nom": "x"})
		}()
	}
	wg.Wait()

	rows, err := store.List(ctx, types.TablePatients, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}

func ids(rows []types.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID())
	}
	return out
}
