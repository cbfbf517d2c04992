package queue

import "github.com/mehdi-it48/medisync-lite/pkg/types"

// Policy decides which status changes Advance accepts
type Policy struct {
	// Strict rejects any change outside the lifecycle graph. When false
	// every target is accepted from every source.
	Strict bool

	// AllowConsultationCancel adds in_consultation -> cancelled to the graph
	AllowConsultationCancel bool
}

// DefaultPolicy enforces the lifecycle without consultation cancellation
func DefaultPolicy() Policy {
	return Policy{Strict: true}
}

var lifecycle = map[types.QueueStatus][]types.QueueStatus{
	types.QueueWaiting:        {types.QueueInConsultation, types.QueueCancelled},
	types.QueueInConsultation: {types.QueueCompleted},
}

// Allowed reports whether an entry may move from one status to another
func (p Policy) Allowed(from, to types.QueueStatus) bool {
	if !p.Strict {
		return true
	}
	if p.AllowConsultationCancel && from == types.QueueInConsultation && to == types.QueueCancelled {
		return true
	}
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns a transition error when the change is not allowed
func (p Policy) Check(from, to types.QueueStatus) error {
	if p.Allowed(from, to) {
		return nil
	}
	return types.NewTransitionError(from, to)
}

// NextStatuses lists the targets offered for an entry in status from
func (p Policy) NextStatuses(from types.QueueStatus) []types.QueueStatus {
	out := append([]types.QueueStatus(nil), lifecycle[from]...)
	if p.AllowConsultationCancel && from == types.QueueInConsultation {
		out = append(out, types.QueueCancelled)
	}
	return out
}

// CanMarkPaid reports whether the "mark as paid" action applies to entry:
// a pending invoice is linked and the patient has been seen or is being seen.
func CanMarkPaid(entry *types.QueueEntry) bool {
	if entry == nil || !entry.HasInvoice() {
		return false
	}
	if entry.Invoice != nil && entry.Invoice.Status == types.InvoicePaid {
		return false
	}
	return entry.Status == types.QueueInConsultation || entry.Status == types.QueueCompleted
}
