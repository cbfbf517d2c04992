// Package queue implements the walk-in queue: per-day ticket numbering, the
// entry status lifecycle, and the display board derived from the queue table.
package queue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mehdi-it48/medisync-lite/internal/queue"

// Option configures an Engine
type Option func(*Engine)

// WithAllocator replaces the default store-scan ticket allocator
func WithAllocator(a TicketAllocator) Option {
	return func(e *Engine) { e.allocator = a }
}

// WithPolicy sets the transition policy
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLocation sets the zone whose midnights bound a queue day
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithMaxTicketRetries bounds re-allocation after a duplicate ticket
func WithMaxTicketRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithEventBus sets the bus receiving EnteredConsultation events
func WithEventBus(bus *EventBus) Option {
	return func(e *Engine) { e.events = bus }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used for engine spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine is the queue ordering engine. Every operation takes its reference
// instant explicitly; the engine never reads the wall clock.
type Engine struct {
	store      interfaces.RowStore
	notifier   interfaces.Notifier
	allocator  TicketAllocator
	events     *EventBus
	policy     Policy
	location   *time.Location
	maxRetries int
	metrics    *monitoring.MetricsCollector
	tracer     trace.Tracer
	logger     *logrus.Entry
}

// NewEngine creates a queue engine over store
func NewEngine(store interfaces.RowStore, notifier interfaces.Notifier, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		notifier:   notifier,
		allocator:  NewStoreScanAllocator(store),
		events:     NewEventBus(),
		policy:     DefaultPolicy(),
		location:   time.Local,
		maxRetries: 3,
		tracer:     otel.Tracer(tracerName),
		logger:     log.WithComponent("queue"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the bus EnteredConsultation is published on
func (e *Engine) Events() *EventBus {
	return e.events
}

// Policy returns the transition policy in force
func (e *Engine) Policy() Policy {
	return e.policy
}

// Day returns the queue day containing at
func (e *Engine) Day(at time.Time) Day {
	return DayOf(at, e.location)
}

// Enqueue adds a patient to the queue of at's day with the next ticket
func (e *Engine) Enqueue(ctx context.Context, at time.Time, req types.EnqueueRequest) (entry *types.QueueEntry, err error) {
	ctx, span := e.tracer.Start(ctx, "queue.Enqueue", trace.WithAttributes(attribute.String("patient.id", req.PatientID)))
	defer func() { e.finish(span, "enqueue", err) }()

	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		err = types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
		e.notifyError("Impossible d'ajouter le patient", err)
		return nil, err
	}

	amount := 0.0
	if req.MontantConsultation != nil {
		amount = *req.MontantConsultation
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		err = types.NewValidationError(types.ErrCodeInvalidInput, "consultation amount must be a non-negative number",
			map[string]interface{}{"montant_consultation": amount})
		e.notifyError("Impossible d'ajouter le patient", err)
		return nil, err
	}

	day := e.Day(at)
	var motif interface{}
	if req.Motif != nil {
		motif = *req.Motif
	}

	for attempt := 0; ; attempt++ {
		var numero int
		numero, err = e.allocator.Next(ctx, day)
		if err != nil {
			e.notifyError("Impossible d'ajouter le patient", err)
			return nil, err
		}

		row := types.Row{
			"patient_id":           patientID,
			"status":               string(types.QueueWaiting),
			"numero_ordre":         numero,
			"motif":                motif,
			"montant_consultation": amount,
			"queue_date":           day.Key,
			"created_at":           at,
		}

		var stored types.Row
		stored, err = e.store.Insert(ctx, types.TableQueue, row)
		if types.IsConflict(err) && attempt < e.maxRetries {
			e.logger.WithFields(logrus.Fields{
				"queue_date":   day.Key,
				"numero_ordre": numero,
				"attempt":      attempt + 1,
			}).Warn("Ticket already taken, allocating another")
			e.metrics.RecordTicketRetry()
			continue
		}
		if err != nil {
			e.notifyError("Impossible d'ajouter le patient", err)
			return nil, err
		}

		entry, err = decodeEntry(stored)
		if err != nil {
			return nil, err
		}
		break
	}

	span.SetAttributes(attribute.Int("queue.numero_ordre", entry.NumeroOrdre), attribute.String("queue.date", day.Key))
	e.metrics.RecordTicketIssued(entry.NumeroOrdre)
	e.logger.WithFields(logrus.Fields{
		"entry_id":     entry.ID,
		"patient_id":   entry.PatientID,
		"numero_ordre": entry.NumeroOrdre,
		"queue_date":   day.Key,
	}).Info("Patient added to queue")
	e.notify(types.NotifySuccess, "Patient ajouté à la file", fmt.Sprintf("Ticket n°%d", entry.NumeroOrdre))
	return entry, nil
}

// Advance moves an entry to status. Entering in_consultation stamps
// called_at and publishes EnteredConsultation; entering completed stamps
// completed_at.
func (e *Engine) Advance(ctx context.Context, at time.Time, entryID string, status types.QueueStatus) (entry *types.QueueEntry, err error) {
	ctx, span := e.tracer.Start(ctx, "queue.Advance", trace.WithAttributes(
		attribute.String("queue.entry_id", entryID),
		attribute.String("queue.status", string(status)),
	))
	defer func() { e.finish(span, "advance", err) }()

	if entryID == "" {
		err = types.NewValidationError(types.ErrCodeInvalidInput, "queue entry id is required", nil)
		e.notifyError("Erreur", err)
		return nil, err
	}
	if !status.Valid() {
		err = types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown queue status: %q", status), nil)
		e.notifyError("Erreur", err)
		return nil, err
	}

	// Strict mode writes only while the entry still holds the status the
	// check was made against
	var guard *types.Query
	if e.policy.Strict {
		var current *types.QueueEntry
		current, err = e.get(ctx, entryID)
		if err != nil {
			e.notifyError("Erreur", err)
			return nil, err
		}
		if err = e.policy.Check(current.Status, status); err != nil {
			e.notifyError("Changement de statut refusé", err)
			return nil, err
		}
		guard = types.NewQuery().Eq("status", string(current.Status))
	}

	patch := types.Row{"status": string(status)}
	switch status {
	case types.QueueInConsultation:
		patch["called_at"] = at
	case types.QueueCompleted:
		patch["completed_at"] = at
	}

	var stored types.Row
	if guard != nil {
		stored, err = e.store.UpdateIf(ctx, types.TableQueue, entryID, guard, patch)
		if types.IsConflict(err) {
			err = e.staleTransition(ctx, entryID, status, err)
		}
	} else {
		stored, err = e.store.Update(ctx, types.TableQueue, entryID, patch)
	}
	if err != nil {
		if types.IsTransition(err) {
			e.notifyError("Changement de statut refusé", err)
		} else {
			e.notifyError("Erreur", err)
		}
		return nil, err
	}
	entry, err = decodeEntry(stored)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"entry_id":     entry.ID,
		"numero_ordre": entry.NumeroOrdre,
		"status":       entry.Status,
	}).Info("Queue entry status changed")
	e.notify(types.NotifySuccess, "Statut mis à jour", types.QueueStatusMessages[status])

	if status == types.QueueInConsultation {
		e.events.Publish(ctx, EnteredConsultation{
			EntryID:     entry.ID,
			PatientID:   entry.PatientID,
			NumeroOrdre: entry.NumeroOrdre,
			Amount:      entry.MontantConsultation,
			InvoiceID:   entry.InvoiceID,
			At:          at,
		})
	}
	return entry, nil
}

// MarkInvoicePaid sets an invoice's status to paid. Queue rows are not touched.
func (e *Engine) MarkInvoicePaid(ctx context.Context, invoiceID string) (invoice *types.Invoice, err error) {
	ctx, span := e.tracer.Start(ctx, "queue.MarkInvoicePaid", trace.WithAttributes(attribute.String("invoice.id", invoiceID)))
	defer func() { e.finish(span, "mark_invoice_paid", err) }()

	if invoiceID == "" {
		err = types.NewValidationError(types.ErrCodeInvalidInput, "invoice id is required", nil)
		e.notifyError("Erreur", err)
		return nil, err
	}

	var stored types.Row
	stored, err = e.store.Update(ctx, types.TableInvoices, invoiceID, types.Row{"statut": string(types.InvoicePaid)})
	if err != nil {
		e.notifyError("Erreur", err)
		return nil, err
	}

	invoice = &types.Invoice{}
	if err = stored.Decode(invoice); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode invoice", err)
	}

	e.logger.WithField("invoice_id", invoice.ID).Info("Invoice marked as paid")
	e.notify(types.NotifySuccess, "Facture payée", fmt.Sprintf("La facture %s a été marquée comme payée", invoice.Numero))
	return invoice, nil
}

// Remove hard-deletes an entry. Other entries keep their numbers.
func (e *Engine) Remove(ctx context.Context, entryID string) (err error) {
	ctx, span := e.tracer.Start(ctx, "queue.Remove", trace.WithAttributes(attribute.String("queue.entry_id", entryID)))
	defer func() { e.finish(span, "remove", err) }()

	if entryID == "" {
		err = types.NewValidationError(types.ErrCodeInvalidInput, "queue entry id is required", nil)
		e.notifyError("Erreur", err)
		return err
	}

	if err = e.store.Delete(ctx, types.TableQueue, entryID); err != nil {
		e.notifyError("Erreur", err)
		return err
	}

	e.logger.WithField("entry_id", entryID).Info("Queue entry removed")
	e.notify(types.NotifySuccess, "Patient retiré", "L'entrée a été supprimée de la file")
	return nil
}

// List returns the entries of day's queue in ticket order, with the patient
// and linked invoice attached
func (e *Engine) List(ctx context.Context, day time.Time) (entries []*types.QueueEntry, err error) {
	ctx, span := e.tracer.Start(ctx, "queue.List")
	defer func() { e.finish(span, "list", err) }()

	d := e.Day(day)
	q := types.NewQuery().
		Gte("created_at", d.Start).
		Lt("created_at", d.End).
		OrderAsc("numero_ordre")

	var rows []types.Row
	rows, err = e.store.List(ctx, types.TableQueue, q)
	if err != nil {
		return nil, err
	}

	entries = make([]*types.QueueEntry, 0, len(rows))
	patientIDs := make([]string, 0, len(rows))
	invoiceIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		var entry *types.QueueEntry
		entry, err = decodeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		patientIDs = append(patientIDs, entry.PatientID)
		if entry.HasInvoice() {
			invoiceIDs = append(invoiceIDs, *entry.InvoiceID)
		}
	}

	var patients map[string]*types.PatientSummary
	patients, err = rowstore.PatientSummaries(ctx, e.store, patientIDs)
	if err != nil {
		return nil, err
	}
	var invoices map[string]types.Row
	invoices, err = rowstore.Index(ctx, e.store, types.TableInvoices, invoiceIDs)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		entry.Patient = patients[entry.PatientID]
		if entry.HasInvoice() {
			if row, ok := invoices[*entry.InvoiceID]; ok {
				inv := &types.Invoice{}
				if err = row.Decode(inv); err != nil {
					return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode invoice", err)
				}
				entry.Invoice = inv
			}
		}
	}

	span.SetAttributes(attribute.Int("queue.entries", len(entries)))
	return entries, nil
}

// Board returns day's queue grouped into display buckets
func (e *Engine) Board(ctx context.Context, day time.Time) (*Board, error) {
	entries, err := e.List(ctx, day)
	if err != nil {
		return nil, err
	}
	board := GroupBoard(e.Day(day).Key, entries)
	e.metrics.RecordBoard(board.countLabels())
	return board, nil
}

func (e *Engine) get(ctx context.Context, entryID string) (*types.QueueEntry, error) {
	row, err := rowstore.Get(ctx, e.store, types.TableQueue, entryID)
	if err != nil {
		return nil, err
	}
	return decodeEntry(row)
}

// staleTransition reports a guarded status write that lost to another
// client. The change is re-checked against the status that won.
func (e *Engine) staleTransition(ctx context.Context, entryID string, to types.QueueStatus, conflict error) error {
	latest, err := e.get(ctx, entryID)
	if err != nil {
		return err
	}
	if err := e.policy.Check(latest.Status, to); err != nil {
		return err
	}
	return conflict
}

func (e *Engine) finish(span trace.Span, operation string, err error) {
	if err != nil {
		monitoring.RecordError(span, err)
		if types.IsStoreError(err) {
			e.metrics.RecordStoreError(operation)
		}
	}
	e.metrics.RecordQueueOperation(operation, err)
	span.End()
}

func (e *Engine) notify(kind types.NotificationKind, title, message string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(kind, title, message)
}

func (e *Engine) notifyError(title string, err error) {
	e.logger.WithError(err).Warn(title)
	e.notify(types.NotifyError, title, err.Error())
}

func decodeEntry(row types.Row) (*types.QueueEntry, error) {
	entry := &types.QueueEntry{}
	if err := row.Decode(entry); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode queue entry", err)
	}
	return entry, nil
}
