package records

import (
	"context"
	"net/url"
	"strings"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// ListDocuments returns the patient's documents, newest first
func (s *Service) ListDocuments(ctx context.Context, patientID string) ([]*types.Document, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	rows, err := s.store.List(ctx, types.TableDocuments,
		types.NewQuery().Eq("patient_id", patientID).OrderDesc("created_at"))
	if err != nil {
		return nil, err
	}

	docs := make([]*types.Document, 0, len(rows))
	for _, row := range rows {
		var doc types.Document
		if err := row.Decode(&doc); err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode document", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// CreateDocument attaches a document to a patient. The file itself lives at
// URL, which must be absolute.
func (s *Service) CreateDocument(ctx context.Context, doc *types.Document) (*types.Document, error) {
	if err := validateDocument(doc); err != nil {
		s.notify(types.NotifyError, "Erreur", "Impossible d'ajouter le document")
		return nil, err
	}

	inserted, err := s.store.Insert(ctx, types.TableDocuments, types.Row{
		"patient_id": strings.TrimSpace(doc.PatientID),
		"type":       strings.TrimSpace(doc.Type),
		"nom":        strings.TrimSpace(doc.Nom),
		"url":        strings.TrimSpace(doc.URL),
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to add document")
		s.notify(types.NotifyError, "Erreur", "Impossible d'ajouter le document")
		return nil, err
	}

	var created types.Document
	if err := inserted.Decode(&created); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode document", err)
	}
	s.logger.WithField("document_id", created.ID).Info("Document added")
	s.notify(types.NotifySuccess, "Succès", "Document ajouté avec succès")
	return &created, nil
}

// DeleteDocument removes a document record
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, types.TableDocuments, id); err != nil {
		s.logger.WithError(err).Warn("Failed to delete document")
		s.notify(types.NotifyError, "Erreur", "Impossible de supprimer le document")
		return err
	}
	s.notify(types.NotifySuccess, "Succès", "Document supprimé")
	return nil
}

func validateDocument(doc *types.Document) error {
	if doc == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "document is required", nil)
	}
	if strings.TrimSpace(doc.PatientID) == "" {
		return types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	if strings.TrimSpace(doc.Type) == "" || strings.TrimSpace(doc.Nom) == "" || strings.TrimSpace(doc.URL) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "type, nom and url are required", nil)
	}
	u, err := url.Parse(strings.TrimSpace(doc.URL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "url must be absolute",
			map[string]interface{}{"url": doc.URL})
	}
	return nil
}
