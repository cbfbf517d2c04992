package queue

import (
	"context"
	"sync"
	"time"
)

// EnteredConsultation is emitted after an entry is written into
// in_consultation. Billing uses it to materialize the visit's invoice.
type EnteredConsultation struct {
	EntryID     string
	PatientID   string
	NumeroOrdre int
	Amount      float64
	InvoiceID   *string
	At          time.Time
}

// ConsultationHandler reacts to EnteredConsultation events
type ConsultationHandler func(ctx context.Context, ev EnteredConsultation)

// EventBus delivers engine events to subscribers synchronously, in
// subscription order
type EventBus struct {
	mu       sync.RWMutex
	handlers []subscription
	nextID   int
}

type subscription struct {
	id      int
	handler ConsultationHandler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers h and returns a function removing it
func (b *EventBus) Subscribe(h ConsultationHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.handlers {
			if s.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every handler with ev
func (b *EventBus) Publish(ctx context.Context, ev EnteredConsultation) {
	b.mu.RLock()
	handlers := make([]ConsultationHandler, 0, len(b.handlers))
	for _, s := range b.handlers {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}
