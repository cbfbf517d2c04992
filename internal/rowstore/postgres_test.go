package rowstore

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mehdi-it48/medisync-lite/pkg/database"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	log := logger.NewWithOutput("debug", io.Discard)
	store := NewPostgresStore(database.Wrap(sqlDB, log), log)

	cleanup := func() {
		sqlDB.Close()
	}
	return store, mock, cleanup
}

func TestPostgresStore_ListBuildsQuery(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "numero_ordre", "status"}).
		AddRow("q-1", int64(1), "waiting").
		AddRow("q-2", int64(2), "completed")

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "queue" WHERE "created_at" >= $1 AND "created_at" < $2 AND "invoice_id" IS NULL ORDER BY "numero_ordre" DESC NULLS LAST LIMIT 5`,
	)).
		WithArgs(day, day.Add(24*time.Hour)).
		WillReturnRows(rows)

	q := types.NewQuery().
		Gte("created_at", day).
		Lt("created_at", day.Add(24*time.Hour)).
		Eq("invoice_id", nil).
		OrderDesc("numero_ordre").
		Take(5)

	out, err := store.List(context.Background(), types.TableQueue, q)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "q-1", out[0].ID())
	assert.Equal(t, int64(1), out[0]["numero_ordre"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListNormalizesColumnTypes(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("UUID", ""),
		sqlmock.NewColumn("date").OfType("DATE", time.Time{}),
		sqlmock.NewColumn("heure_debut").OfType("TIME", ""),
		sqlmock.NewColumn("montant").OfType("NUMERIC", ""),
		sqlmock.NewColumn("notes").OfType("TEXT", ""),
	).AddRow(
		[]byte("apt-1"),
		time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
		[]byte("09:15:00"),
		[]byte("500.00"),
		nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "appointments"`)).WillReturnRows(rows)

	out, err := store.List(context.Background(), types.TableAppointments, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "apt-1", out[0]["id"])
	assert.Equal(t, "2024-03-13", out[0]["date"])
	assert.Equal(t, "09:15", out[0]["heure_debut"])
	assert.Equal(t, 500.0, out[0]["montant"])
	assert.Nil(t, out[0]["notes"])
}

func TestPostgresStore_RejectsUnsafeIdentifiers(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	_, err := store.List(context.Background(), "queue; DROP TABLE patients", nil)
	assert.True(t, types.IsValidation(err))

	_, err = store.List(context.Background(), types.TableQueue, types.NewQuery().Eq(`status" OR 1=1 --`, "x"))
	assert.True(t, types.IsValidation(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "nom", "prenom", "created_at"}).
		AddRow("p-1", "Benali", "Amine", created)

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "patients" ("nom", "prenom") VALUES ($1, $2) RETURNING *`,
	)).
		WithArgs("Benali", "Amine").
		WillReturnRows(rows)

	row, err := store.Insert(context.Background(), types.TablePatients, types.Row{"prenom": "Amine", "nom": "Benali"})
	require.NoError(t, err)
	assert.Equal(t, "p-1", row.ID())
	assert.Equal(t, created, row["created_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertUniqueViolationIsConflict(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	pqErr := &pq.Error{Code: "23505", Constraint: "uq_queue_day_ticket"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "queue"`)).WillReturnError(pqErr)

	_, err := store.Insert(context.Background(), types.TableQueue, types.Row{"numero_ordre": 1, "queue_date": "2024-03-13"})
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
	assert.ErrorIs(t, err, pqErr)
}

func TestPostgresStore_BackendFailureIsStoreError(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	backend := errors.New("connection reset by peer")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "queue"`)).WillReturnError(backend)

	_, err := store.List(context.Background(), types.TableQueue, nil)
	require.Error(t, err)
	assert.True(t, types.IsStoreError(err))
	assert.ErrorIs(t, err, backend)
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "statut"}).AddRow("inv-1", "paid")
	mock.ExpectQuery(regexp.QuoteMeta(
		`UPDATE "invoices" SET "statut" = $1 WHERE id = $2 RETURNING *`,
	)).
		WithArgs("paid", "inv-1").
		WillReturnRows(rows)

	row, err := store.Update(context.Background(), types.TableInvoices, "inv-1", types.Row{"statut": "paid", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "paid", row["statut"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMissingRowIsNotFound(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "queue" SET "status" = $1 WHERE id = $2 RETURNING *`)).
		WithArgs("completed", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

	_, err := store.Update(context.Background(), types.TableQueue, "missing", types.Row{"status": "completed"})
	assert.True(t, types.IsNotFound(err))
}

func TestPostgresStore_UpdateIf(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	guarded := regexp.QuoteMeta(`UPDATE "queue" SET "status" = $1 WHERE id = $2 AND "status" = $3 AND "invoice_id" IS NULL RETURNING *`)
	guard := types.NewQuery().Eq("status", "waiting").Eq("invoice_id", nil)
	patch := types.Row{"status": "in_consultation"}

	mock.ExpectQuery(guarded).
		WithArgs("in_consultation", "q-1", "waiting").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("q-1", "in_consultation"))
	row, err := store.UpdateIf(context.Background(), types.TableQueue, "q-1", guard, patch)
	require.NoError(t, err)
	assert.Equal(t, "in_consultation", row["status"])

	mock.ExpectQuery(guarded).
		WithArgs("in_consultation", "q-1", "waiting").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "queue" WHERE id = $1`)).
		WithArgs("q-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("q-1"))
	_, err = store.UpdateIf(context.Background(), types.TableQueue, "q-1", guard, patch)
	assert.True(t, types.IsConflict(err))

	mock.ExpectQuery(guarded).
		WithArgs("in_consultation", "missing", "waiting").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "queue" WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = store.UpdateIf(context.Background(), types.TableQueue, "missing", guard, patch)
	assert.True(t, types.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "queue" WHERE id = $1`)).
		WithArgs("q-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "queue" WHERE id = $1`)).
		WithArgs("q-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Delete(context.Background(), types.TableQueue, "q-1"))
	assert.True(t, types.IsNotFound(store.Delete(context.Background(), types.TableQueue, "q-1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DispatchRoutesByTable(t *testing.T) {
	store, _, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	var queueChanges, patientChanges []types.Change
	unsubscribe := store.addSubscriber(types.TableQueue, func(c types.Change) { queueChanges = append(queueChanges, c) })
	store.addSubscriber(types.TablePatients, func(c types.Change) { patientChanges = append(patientChanges, c) })

	store.dispatch(`{"table":"queue","kind":"update","id":"q-1"}`)
	store.dispatch(`not json`)
	store.broadcastReset()

	unsubscribe()
	store.dispatch(`{"table":"queue","kind":"delete","id":"q-1"}`)

	require.Len(t, queueChanges, 2)
	assert.Equal(t, types.Change{Table: "queue", Kind: types.ChangeUpdate, ID: "q-1"}, queueChanges[0])
	assert.Equal(t, types.Change{Table: "queue"}, queueChanges[1])
	assert.Len(t, patientChanges, 1)
}

func TestPostgresStore_SubscribeNeedsConnectionString(t *testing.T) {
	store, _, cleanup := setupTestPostgresStore(t)
	defer cleanup()

	_, err := store.Subscribe(types.TableQueue, func(types.Change) {})
	assert.Error(t, err)
}
