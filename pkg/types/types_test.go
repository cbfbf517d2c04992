package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("connection reset")
	storeErr := NewStoreError("insert", TableQueue, cause)
	wrapped := fmt.Errorf("enqueue: %w", storeErr)

	assert.True(t, IsStoreError(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ErrorTypeInternal, ErrorTypeOf(cause))
	assert.False(t, IsValidation(nil))

	transition := NewTransitionError(QueueCompleted, QueueWaiting)
	assert.True(t, IsTransition(transition))
	assert.Equal(t, "completed", transition.Details["from"])
	assert.Contains(t, transition.Error(), ErrCodeInvalidTransition)
}

func TestStatusValidity(t *testing.T) {
	for status := range QueueStatusLabels {
		assert.True(t, status.Valid(), status)
		assert.NotEmpty(t, QueueStatusMessages[status], status)
	}
	assert.False(t, QueueStatus("called").Valid())
	assert.True(t, AppointmentConfirmed.Valid())
	assert.False(t, AppointmentStatus("scheduled").Valid())
	assert.True(t, InvoicePending.Valid())
	assert.False(t, InvoiceStatus("refunded").Valid())
}

func TestRowDecode(t *testing.T) {
	created := time.Date(2024, 3, 13, 9, 30, 0, 0, time.UTC)
	row := Row{
		"id":                   "entry-1",
		"patient_id":           "patient-1",
		"status":               "waiting",
		"numero_ordre":         int64(3),
		"montant_consultation": 45.5,
		"created_at":           created,
		"invoice_id":           nil,
		"unknown_column":       true,
	}

	var entry QueueEntry
	require.NoError(t, row.Decode(&entry))

	assert.Equal(t, "entry-1", row.ID())
	assert.Equal(t, 3, entry.NumeroOrdre)
	assert.Equal(t, QueueWaiting, entry.Status)
	assert.True(t, entry.CreatedAt.Equal(created))
	assert.Nil(t, entry.InvoiceID)
	assert.Equal(t, "", Row{"id": 7}.ID())
}

func TestAppointmentUpdatesRow(t *testing.T) {
	date := "2024-03-14"
	status := AppointmentConfirmed

	patch := (&AppointmentUpdates{Date: &date, Status: &status}).Row()

	assert.Equal(t, Row{"date": "2024-03-14", "statut": "confirmed"}, patch)
}
