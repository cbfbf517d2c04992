package billing

import (
	"context"
	"fmt"

	"github.com/mehdi-it48/medisync-lite/internal/queue"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// ConsultationNumero formats the invoice number of a consultation ticket,
// FAC-YYYYMMDD-NNN
func ConsultationNumero(date string, numeroOrdre int) string {
	compact := date
	if len(date) == len(types.DateLayout) {
		compact = date[:4] + date[5:7] + date[8:10]
	}
	return fmt.Sprintf("FAC-%s-%03d", compact, numeroOrdre)
}

// ConsultationInvoicer creates the invoice of a visit when its queue entry
// enters consultation, then links it on the queue row. A failed attempt is
// logged and notified; it is not retried.
type ConsultationInvoicer struct {
	billing     *Service
	unsubscribe func()
}

// NewConsultationInvoicer creates an invoicer writing through billing
func NewConsultationInvoicer(billing *Service) *ConsultationInvoicer {
	return &ConsultationInvoicer{billing: billing}
}

// Attach subscribes the invoicer to bus
func (ci *ConsultationInvoicer) Attach(bus *queue.EventBus) {
	ci.Detach()
	ci.unsubscribe = bus.Subscribe(ci.Handle)
}

// Detach stops reacting to events
func (ci *ConsultationInvoicer) Detach() {
	if ci.unsubscribe != nil {
		ci.unsubscribe()
		ci.unsubscribe = nil
	}
}

// Handle materializes the invoice for ev unless the entry already has one.
// The link is written only onto an entry without an invoice; losing that
// race deletes the invoice just created.
func (ci *ConsultationInvoicer) Handle(ctx context.Context, ev queue.EnteredConsultation) {
	if ev.InvoiceID != nil && *ev.InvoiceID != "" {
		return
	}

	s := ci.billing
	log := s.logger.WithFields(logrus.Fields{
		"queue_entry_id": ev.EntryID,
		"numero_ordre":   ev.NumeroOrdre,
	})

	date := ev.At.In(s.location).Format(types.DateLayout)
	inv, err := s.insert(ctx, &types.Invoice{
		PatientID: ev.PatientID,
		Numero:    ConsultationNumero(date, ev.NumeroOrdre),
		Date:      date,
		Montant:   ev.Amount,
		Status:    types.InvoicePending,
	})
	s.metrics.RecordInvoiceCreated(err)
	if err != nil {
		log.WithError(err).Error("Failed to create consultation invoice")
		s.notify(types.NotifyError, "Erreur", fmt.Sprintf("Impossible de créer la facture: %v", err))
		return
	}

	unlinked := types.NewQuery().Eq("invoice_id", nil)
	if _, err := s.store.UpdateIf(ctx, types.TableQueue, ev.EntryID, unlinked, types.Row{"invoice_id": inv.ID}); err != nil {
		if types.IsConflict(err) {
			// Another event for the same visit linked its invoice first
			if delErr := s.store.Delete(ctx, types.TableInvoices, inv.ID); delErr != nil {
				log.WithError(delErr).WithField("invoice_id", inv.ID).Error("Failed to discard duplicate consultation invoice")
				return
			}
			log.WithField("invoice_id", inv.ID).Warn("Entry already invoiced, duplicate invoice discarded")
			return
		}
		log.WithError(err).WithField("invoice_id", inv.ID).Error("Failed to link consultation invoice")
		s.notify(types.NotifyError, "Erreur", fmt.Sprintf("Impossible de lier la facture %s: %v", inv.Numero, err))
		return
	}

	log.WithField("invoice_id", inv.ID).Info("Consultation invoice linked")
	s.notify(types.NotifySuccess, "Facture créée", fmt.Sprintf("Facture %s", inv.Numero))
}
