package types

import "time"

// Layouts of the appointment date and time columns
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment represents a scheduled appointment. Date and times are kept in
// their column formats (YYYY-MM-DD and fixed-width HH:MM) so that string
// ordering matches chronological ordering.
type Appointment struct {
	ID         string            `json:"id"`
	PatientID  string            `json:"patient_id"`
	Date       string            `json:"date"`
	HeureDebut string            `json:"heure_debut"`
	HeureFin   string            `json:"heure_fin"`
	Type       string            `json:"type"`
	Status     AppointmentStatus `json:"statut"`
	Notes      *string           `json:"notes"`
	CreatedAt  time.Time         `json:"created_at"`
	Patient    *PatientSummary   `json:"patient,omitempty"`
}

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Valid reports whether s is a known appointment status
func (s AppointmentStatus) Valid() bool {
	_, ok := AppointmentStatusLabels[s]
	return ok
}

// AppointmentTypes is the suggestion list offered by the booking form.
// Other values are accepted as free-form tags.
var AppointmentTypes = []string{
	"consultation",
	"suivi",
	"urgence",
	"controle",
	"vaccination",
	"examen",
}

// AppointmentUpdates represents updates to an appointment
type AppointmentUpdates struct {
	PatientID  *string            `json:"patient_id,omitempty"`
	Date       *string            `json:"date,omitempty"`
	HeureDebut *string            `json:"heure_debut,omitempty"`
	HeureFin   *string            `json:"heure_fin,omitempty"`
	Type       *string            `json:"type,omitempty"`
	Status     *AppointmentStatus `json:"statut,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
}

// Row converts the non-nil updates into a patch row
func (u *AppointmentUpdates) Row() Row {
	patch := Row{}
	if u.PatientID != nil {
		patch["patient_id"] = *u.PatientID
	}
	if u.Date != nil {
		patch["date"] = *u.Date
	}
	if u.HeureDebut != nil {
		patch["heure_debut"] = *u.HeureDebut
	}
	if u.HeureFin != nil {
		patch["heure_fin"] = *u.HeureFin
	}
	if u.Type != nil {
		patch["type"] = *u.Type
	}
	if u.Status != nil {
		patch["statut"] = string(*u.Status)
	}
	if u.Notes != nil {
		patch["notes"] = *u.Notes
	}
	return patch
}
