package types

import "time"

// Patient represents a clinic patient
type Patient struct {
	ID              string    `json:"id"`
	Nom             string    `json:"nom"`
	Prenom          string    `json:"prenom"`
	DateNaissance   *string   `json:"date_naissance"`
	Telephone       *string   `json:"telephone"`
	Email           *string   `json:"email"`
	Adresse         *string   `json:"adresse"`
	Mutuelle        *string   `json:"mutuelle"`
	PersonneContact *string   `json:"personne_contact"`
	CreatedAt       time.Time `json:"created_at"`
}

// PatientSummary is the patient projection joined onto queue entries,
// appointments and invoices for display
type PatientSummary struct {
	ID        string  `json:"id"`
	Nom       string  `json:"nom"`
	Prenom    string  `json:"prenom"`
	Telephone *string `json:"telephone,omitempty"`
}

// Summary returns the display projection of p
func (p *Patient) Summary() *PatientSummary {
	return &PatientSummary{ID: p.ID, Nom: p.Nom, Prenom: p.Prenom, Telephone: p.Telephone}
}

// PatientUpdates represents updates to a patient
type PatientUpdates struct {
	Nom             *string `json:"nom,omitempty"`
	Prenom          *string `json:"prenom,omitempty"`
	DateNaissance   *string `json:"date_naissance,omitempty"`
	Telephone       *string `json:"telephone,omitempty"`
	Email           *string `json:"email,omitempty"`
	Adresse         *string `json:"adresse,omitempty"`
	Mutuelle        *string `json:"mutuelle,omitempty"`
	PersonneContact *string `json:"personne_contact,omitempty"`
}

// Row converts the non-nil updates into a patch row
func (u *PatientUpdates) Row() Row {
	patch := Row{}
	set := func(col string, v *string) {
		if v != nil {
			patch[col] = *v
		}
	}
	set("nom", u.Nom)
	set("prenom", u.Prenom)
	set("date_naissance", u.DateNaissance)
	set("telephone", u.Telephone)
	set("email", u.Email)
	set("adresse", u.Adresse)
	set("mutuelle", u.Mutuelle)
	set("personne_contact", u.PersonneContact)
	return patch
}

// InvoiceStatus represents invoice status values
type InvoiceStatus string

const (
	InvoicePaid      InvoiceStatus = "paid"
	InvoicePending   InvoiceStatus = "pending"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is a known invoice status
func (s InvoiceStatus) Valid() bool {
	_, ok := InvoiceStatusLabels[s]
	return ok
}

// Invoice represents a patient invoice. Amounts are in dinars.
type Invoice struct {
	ID        string          `json:"id"`
	PatientID string          `json:"patient_id"`
	Numero    string          `json:"numero"`
	Date      string          `json:"date"`
	Montant   float64         `json:"montant"`
	Status    InvoiceStatus   `json:"statut"`
	CreatedAt time.Time       `json:"created_at"`
	Patient   *PatientSummary `json:"patient,omitempty"`
}

// InvoiceUpdates represents updates to an invoice
type InvoiceUpdates struct {
	Numero  *string        `json:"numero,omitempty"`
	Date    *string        `json:"date,omitempty"`
	Montant *float64       `json:"montant,omitempty"`
	Status  *InvoiceStatus `json:"statut,omitempty"`
}

// Row converts the non-nil updates into a patch row
func (u *InvoiceUpdates) Row() Row {
	patch := Row{}
	if u.Numero != nil {
		patch["numero"] = *u.Numero
	}
	if u.Date != nil {
		patch["date"] = *u.Date
	}
	if u.Montant != nil {
		patch["montant"] = *u.Montant
	}
	if u.Status != nil {
		patch["statut"] = string(*u.Status)
	}
	return patch
}

// MedicalRecord holds the four free-text sections of a patient's file.
// Each section is edited and stored as a whole string.
type MedicalRecord struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	Antecedents *string   `json:"antecedents"`
	Allergies   *string   `json:"allergies"`
	Traitements *string   `json:"traitements"`
	Notes       *string   `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

// MedicalRecordFields is a partial medical record write
type MedicalRecordFields struct {
	Antecedents *string `json:"antecedents,omitempty"`
	Allergies   *string `json:"allergies,omitempty"`
	Traitements *string `json:"traitements,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Row converts the non-nil fields into a patch row
func (f *MedicalRecordFields) Row() Row {
	patch := Row{}
	if f.Antecedents != nil {
		patch["antecedents"] = *f.Antecedents
	}
	if f.Allergies != nil {
		patch["allergies"] = *f.Allergies
	}
	if f.Traitements != nil {
		patch["traitements"] = *f.Traitements
	}
	if f.Notes != nil {
		patch["notes"] = *f.Notes
	}
	return patch
}

// Document is a file attached to a patient, stored elsewhere and referenced by URL
type Document struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Type      string    `json:"type"`
	Nom       string    `json:"nom"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
