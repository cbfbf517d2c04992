// Package records holds patient identities, their medical record and their
// attached documents.
package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// Service manages patients, medical records and documents
type Service struct {
	store    interfaces.RowStore
	notifier interfaces.Notifier
	logger   *logrus.Entry
}

// NewService creates a records service over store
func NewService(store interfaces.RowStore, notifier interfaces.Notifier, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   log.WithComponent("records"),
	}
}

// CreatePatient registers a patient. Nom and prenom are required.
func (s *Service) CreatePatient(ctx context.Context, p *types.Patient) (*types.Patient, error) {
	if p == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient is required", nil)
	}
	if err := requireNames(p.Nom, p.Prenom); err != nil {
		s.notifyError("Impossible de créer le patient", err)
		return nil, err
	}

	row := types.Row{
		"nom":    strings.TrimSpace(p.Nom),
		"prenom": strings.TrimSpace(p.Prenom),
	}
	optional := map[string]*string{
		"date_naissance":   p.DateNaissance,
		"telephone":        p.Telephone,
		"email":            p.Email,
		"adresse":          p.Adresse,
		"mutuelle":         p.Mutuelle,
		"personne_contact": p.PersonneContact,
	}
	for col, v := range optional {
		if v != nil {
			row[col] = *v
		}
	}

	inserted, err := s.store.Insert(ctx, types.TablePatients, row)
	if err != nil {
		s.notifyError("Impossible de créer le patient", err)
		return nil, err
	}
	created, err := decodePatient(inserted)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("patient_id", created.ID).Info("Patient created")
	s.notify(types.NotifySuccess, "Patient ajouté", "Le patient a été créé avec succès.")
	return created, nil
}

// GetPatient returns one patient
func (s *Service) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	row, err := rowstore.Get(ctx, s.store, types.TablePatients, id)
	if err != nil {
		return nil, err
	}
	return decodePatient(row)
}

// ListPatients returns every patient, newest first
func (s *Service) ListPatients(ctx context.Context) ([]*types.Patient, error) {
	rows, err := s.store.List(ctx, types.TablePatients, types.NewQuery().OrderDesc("created_at"))
	if err != nil {
		return nil, err
	}
	patients := make([]*types.Patient, 0, len(rows))
	for _, row := range rows {
		p, err := decodePatient(row)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// SearchPatients returns the patients whose nom, prenom or telephone
// contains query, ignoring case. A blank query returns every patient.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]*types.Patient, error) {
	patients, err := s.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return patients, nil
	}

	matches := make([]*types.Patient, 0)
	for _, p := range patients {
		fields := []string{p.Nom, p.Prenom}
		if p.Telephone != nil {
			fields = append(fields, *p.Telephone)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), needle) {
				matches = append(matches, p)
				break
			}
		}
	}
	return matches, nil
}

// UpdatePatient applies the non-nil fields of updates
func (s *Service) UpdatePatient(ctx context.Context, id string, updates *types.PatientUpdates) (*types.Patient, error) {
	if updates == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "updates are required", nil)
	}
	if (updates.Nom != nil && strings.TrimSpace(*updates.Nom) == "") ||
		(updates.Prenom != nil && strings.TrimSpace(*updates.Prenom) == "") {
		err := types.NewValidationError(types.ErrCodeInvalidInput, "nom and prenom must not be blank", nil)
		s.notifyError("Impossible de mettre à jour", err)
		return nil, err
	}

	row, err := s.store.Update(ctx, types.TablePatients, id, updates.Row())
	if err != nil {
		s.notifyError("Impossible de mettre à jour", err)
		return nil, err
	}
	p, err := decodePatient(row)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("patient_id", id).Info("Patient updated")
	s.notify(types.NotifySuccess, "Patient mis à jour", "Les informations ont été enregistrées.")
	return p, nil
}

// DeletePatient removes a patient. Dependent rows are left to the store.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, types.TablePatients, id); err != nil {
		s.notifyError("Impossible de supprimer", err)
		return err
	}
	s.logger.WithField("patient_id", id).Info("Patient deleted")
	s.notify(types.NotifySuccess, "Patient supprimé", "Le patient a été supprimé avec succès.")
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

func requireNames(nom, prenom string) error {
	if strings.TrimSpace(nom) == "" || strings.TrimSpace(prenom) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "nom and prenom are required",
			map[string]interface{}{"nom": nom, "prenom": prenom})
	}
	return nil
}

func decodePatient(row types.Row) (*types.Patient, error) {
	var p types.Patient
	if err := row.Decode(&p); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode patient", err)
	}
	return &p, nil
}
