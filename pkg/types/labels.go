package types

// StatusLabel is the display label and color class of a status value
type StatusLabel struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// QueueStatusLabels is the single lookup table for queue statuses
var QueueStatusLabels = map[QueueStatus]StatusLabel{
	QueueWaiting:        {Label: "En attente", Color: "amber"},
	QueueInConsultation: {Label: "En consultation", Color: "blue"},
	QueueCompleted:      {Label: "Terminé", Color: "green"},
	QueueCancelled:      {Label: "Annulé", Color: "red"},
}

// AppointmentStatusLabels is the single lookup table for appointment statuses
var AppointmentStatusLabels = map[AppointmentStatus]StatusLabel{
	AppointmentPending:   {Label: "En attente", Color: "amber"},
	AppointmentConfirmed: {Label: "Confirmé", Color: "blue"},
	AppointmentCancelled: {Label: "Annulé", Color: "muted"},
	AppointmentCompleted: {Label: "Terminé", Color: "green"},
}

// InvoiceStatusLabels is the single lookup table for invoice statuses
var InvoiceStatusLabels = map[InvoiceStatus]StatusLabel{
	InvoicePaid:      {Label: "Payé", Color: "green"},
	InvoicePending:   {Label: "En attente", Color: "amber"},
	InvoiceCancelled: {Label: "Annulé", Color: "red"},
}

// QueueStatusMessages are the notification texts shown after a transition
var QueueStatusMessages = map[QueueStatus]string{
	QueueWaiting:        "Patient remis en attente",
	QueueInConsultation: "Patient appelé en consultation",
	QueueCompleted:      "Consultation terminée",
	QueueCancelled:      "Patient retiré de la file",
}
