package records

import (
	"context"
	"strings"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// GetMedicalRecord returns the patient's record, nil when none was written yet
func (s *Service) GetMedicalRecord(ctx context.Context, patientID string) (*types.MedicalRecord, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	row, err := s.findMedicalRecord(ctx, patientID)
	if err != nil || row == nil {
		return nil, err
	}
	return decodeMedicalRecord(row)
}

// UpsertMedicalRecord writes the given sections of the patient's record,
// creating the record on first write. Sections left nil are unchanged.
func (s *Service) UpsertMedicalRecord(ctx context.Context, patientID string, fields *types.MedicalRecordFields) (*types.MedicalRecord, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	if fields == nil {
		fields = &types.MedicalRecordFields{}
	}

	rec, err := s.upsertMedicalRecord(ctx, patientID, fields.Row())
	if err != nil {
		s.logger.WithError(err).WithField("patient_id", patientID).Warn("Failed to save medical record")
		s.notify(types.NotifyError, "Erreur", "Impossible de mettre à jour le dossier médical")
		return nil, err
	}
	s.logger.WithField("patient_id", patientID).Info("Medical record saved")
	s.notify(types.NotifySuccess, "Succès", "Dossier médical mis à jour")
	return rec, nil
}

func (s *Service) upsertMedicalRecord(ctx context.Context, patientID string, patch types.Row) (*types.MedicalRecord, error) {
	existing, err := s.findMedicalRecord(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		row := types.Row{"patient_id": patientID}
		for k, v := range patch {
			row[k] = v
		}
		inserted, err := s.store.Insert(ctx, types.TableMedicalRecords, row)
		if err == nil {
			return decodeMedicalRecord(inserted)
		}
		if !types.IsConflict(err) {
			return nil, err
		}
		// Another terminal created it first; write over theirs
		existing, err = s.findMedicalRecord(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, types.NewConflictError(types.ErrCodeConflict, "medical record vanished during upsert", nil)
		}
	}

	updated, err := s.store.Update(ctx, types.TableMedicalRecords, existing.ID(), patch)
	if err != nil {
		return nil, err
	}
	return decodeMedicalRecord(updated)
}

func (s *Service) findMedicalRecord(ctx context.Context, patientID string) (types.Row, error) {
	rows, err := s.store.List(ctx, types.TableMedicalRecords, types.NewQuery().Eq("patient_id", patientID).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func decodeMedicalRecord(row types.Row) (*types.MedicalRecord, error) {
	var rec types.MedicalRecord
	if err := row.Decode(&rec); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode medical record", err)
	}
	return &rec, nil
}
