package types

import "time"

// QueueStatus represents the lifecycle state of a walk-in queue entry
type QueueStatus string

const (
	QueueWaiting        QueueStatus = "waiting"
	QueueInConsultation QueueStatus = "in_consultation"
	QueueCompleted      QueueStatus = "completed"
	QueueCancelled      QueueStatus = "cancelled"
)

// Valid reports whether s is a known queue status
func (s QueueStatus) Valid() bool {
	_, ok := QueueStatusLabels[s]
	return ok
}

// Terminal reports whether no further transition leaves s
func (s QueueStatus) Terminal() bool {
	return s == QueueCompleted || s == QueueCancelled
}

// QueueEntry is a walk-in patient's place in a day's consultation order
type QueueEntry struct {
	ID                  string          `json:"id"`
	PatientID           string          `json:"patient_id"`
	Status              QueueStatus     `json:"status"`
	NumeroOrdre         int             `json:"numero_ordre"`
	Motif               *string         `json:"motif"`
	MontantConsultation float64         `json:"montant_consultation"`
	QueueDate           string          `json:"queue_date"`
	CreatedAt           time.Time       `json:"created_at"`
	CalledAt            *time.Time      `json:"called_at"`
	CompletedAt         *time.Time      `json:"completed_at"`
	InvoiceID           *string         `json:"invoice_id"`
	Patient             *PatientSummary `json:"patients,omitempty"`
	Invoice             *Invoice        `json:"invoices,omitempty"`
}

// HasInvoice reports whether an invoice is linked to the entry
func (e *QueueEntry) HasInvoice() bool {
	return e.InvoiceID != nil && *e.InvoiceID != ""
}

// EnqueueRequest carries the fields supplied when a patient joins the queue
type EnqueueRequest struct {
	PatientID           string   `json:"patient_id"`
	Motif               *string  `json:"motif,omitempty"`
	MontantConsultation *float64 `json:"montant_consultation,omitempty"`
}

// StatusChangeRequest carries a requested queue transition
type StatusChangeRequest struct {
	Status QueueStatus `json:"status"`
}
