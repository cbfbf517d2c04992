// Package billing manages invoices, materializes consultation invoices and
// computes the monthly figures of the statistics screen.
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// Option configures a Service
type Option func(*Service)

// WithLocation sets the zone used to date consultation invoices
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// Service manages invoices
type Service struct {
	store    interfaces.RowStore
	notifier interfaces.Notifier
	location *time.Location
	metrics  *monitoring.MetricsCollector
	logger   *logrus.Entry
}

// NewService creates a billing service over store
func NewService(store interfaces.RowStore, notifier interfaces.Notifier, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		location: time.Local,
		logger:   log.WithComponent("billing"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a new invoice. Status defaults to pending.
func (s *Service) Create(ctx context.Context, inv *types.Invoice) (*types.Invoice, error) {
	created, err := s.insert(ctx, inv)
	s.metrics.RecordInvoiceCreated(err)
	if err != nil {
		s.notifyError("Impossible de créer la facture", err)
		return nil, err
	}
	s.notify(types.NotifySuccess, "Facture créée", "La facture a été créée avec succès.")
	return created, nil
}

func (s *Service) insert(ctx context.Context, inv *types.Invoice) (*types.Invoice, error) {
	if err := validateInvoice(inv); err != nil {
		return nil, err
	}
	if inv.Status == "" {
		inv.Status = types.InvoicePending
	}

	row, err := s.store.Insert(ctx, types.TableInvoices, types.Row{
		"patient_id": strings.TrimSpace(inv.PatientID),
		"numero":     strings.TrimSpace(inv.Numero),
		"date":       inv.Date,
		"montant":    inv.Montant,
		"statut":     string(inv.Status),
	})
	if err != nil {
		return nil, err
	}
	created, err := decodeInvoice(row)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": created.ID,
		"numero":     created.Numero,
		"patient_id": created.PatientID,
	}).Info("Invoice created")
	return created, nil
}

// Get returns one invoice with its patient
func (s *Service) Get(ctx context.Context, id string) (*types.Invoice, error) {
	row, err := rowstore.Get(ctx, s.store, types.TableInvoices, id)
	if err != nil {
		return nil, err
	}
	inv, err := decodeInvoice(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachPatients(ctx, []*types.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns every invoice, most recent date first
func (s *Service) List(ctx context.Context) ([]*types.Invoice, error) {
	rows, err := s.store.List(ctx, types.TableInvoices, types.NewQuery().OrderDesc("date").OrderDesc("created_at"))
	if err != nil {
		return nil, err
	}

	invoices := make([]*types.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := decodeInvoice(row)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := s.attachPatients(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Update applies the non-nil fields of updates
func (s *Service) Update(ctx context.Context, id string, updates *types.InvoiceUpdates) (*types.Invoice, error) {
	if err := validateUpdates(updates); err != nil {
		s.notifyError("Impossible de modifier", err)
		return nil, err
	}

	row, err := s.store.Update(ctx, types.TableInvoices, id, updates.Row())
	if err != nil {
		s.notifyError("Impossible de modifier", err)
		return nil, err
	}
	inv, err := decodeInvoice(row)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("invoice_id", id).Info("Invoice updated")
	s.notify(types.NotifySuccess, "Facture modifiée", "Les modifications ont été enregistrées.")
	return inv, nil
}

// SetStatus changes only the status of an invoice
func (s *Service) SetStatus(ctx context.Context, id string, status types.InvoiceStatus) (*types.Invoice, error) {
	return s.Update(ctx, id, &types.InvoiceUpdates{Status: &status})
}

// Delete removes an invoice. Queue entries linked to it keep a dangling
// invoice_id; the queue list reports them without an invoice.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, types.TableInvoices, id); err != nil {
		s.notifyError("Impossible de supprimer", err)
		return err
	}
	s.logger.WithField("invoice_id", id).Info("Invoice deleted")
	s.notify(types.NotifySuccess, "Facture supprimée", "La facture a été supprimée.")
	return nil
}

func (s *Service) attachPatients(ctx context.Context, invoices []*types.Invoice) error {
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.PatientID)
	}
	patients, err := rowstore.PatientSummaries(ctx, s.store, ids)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		inv.Patient = patients[inv.PatientID]
	}
	return nil
}

func (s *Service) notify(kind types.NotificationKind, title, message string) {
	if s.notifier != nil {
		s.notifier.Notify(kind, title, message)
	}
}

func (s *Service) notifyError(title string, err error) {
	s.logger.WithError(err).Warn(title)
	s.notify(types.NotifyError, "Erreur", fmt.Sprintf("%s: %v", title, err))
}

func validateInvoice(inv *types.Invoice) error {
	if inv == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invoice is required", nil)
	}
	if strings.TrimSpace(inv.PatientID) == "" {
		return types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	if strings.TrimSpace(inv.Numero) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invoice number is required", nil)
	}
	if _, err := time.Parse(types.DateLayout, inv.Date); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "date must be YYYY-MM-DD",
			map[string]interface{}{"date": inv.Date})
	}
	if inv.Montant < 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "amount must not be negative",
			map[string]interface{}{"montant": inv.Montant})
	}
	if inv.Status != "" && !inv.Status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unknown invoice status",
			map[string]interface{}{"statut": string(inv.Status)})
	}
	return nil
}

func validateUpdates(u *types.InvoiceUpdates) error {
	if u == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "updates are required", nil)
	}
	if u.Numero != nil && strings.TrimSpace(*u.Numero) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invoice number is required", nil)
	}
	if u.Date != nil {
		if _, err := time.Parse(types.DateLayout, *u.Date); err != nil {
			return types.NewValidationError(types.ErrCodeInvalidInput, "date must be YYYY-MM-DD",
				map[string]interface{}{"date": *u.Date})
		}
	}
	if u.Montant != nil && *u.Montant < 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "amount must not be negative",
			map[string]interface{}{"montant": *u.Montant})
	}
	if u.Status != nil && !u.Status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unknown invoice status",
			map[string]interface{}{"statut": string(*u.Status)})
	}
	return nil
}

func decodeInvoice(row types.Row) (*types.Invoice, error) {
	var inv types.Invoice
	if err := row.Decode(&inv); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode invoice", err)
	}
	return &inv, nil
}
