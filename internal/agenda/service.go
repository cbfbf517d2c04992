// Package agenda serves appointments and projects them onto the week grid
// and the day list shown at the front desk.
package agenda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// Option configures a Service
type Option func(*Service)

// WithHours sets the hour rows of week grids
func WithHours(hours []int) Option {
	return func(s *Service) { s.hours = hours }
}

// WithLocation sets the zone used to turn instants into calendar dates
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// Service manages appointments
type Service struct {
	store    interfaces.RowStore
	notifier interfaces.Notifier
	hours    []int
	location *time.Location
	logger   *logrus.Entry
}

// NewService creates an appointment service over store
func NewService(store interfaces.RowStore, notifier interfaces.Notifier, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		hours:    DefaultHours(),
		location: time.Local,
		logger:   log.WithComponent("agenda"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create books a new appointment. Status defaults to pending.
func (s *Service) Create(ctx context.Context, apt *types.Appointment) (*types.Appointment, error) {
	if err := validateAppointment(apt); err != nil {
		s.notifyError("Impossible de créer le rendez-vous", err)
		return nil, err
	}
	if apt.Status == "" {
		apt.Status = types.AppointmentPending
	}

	row := types.Row{
		"patient_id":  strings.TrimSpace(apt.PatientID),
		"date":        apt.Date,
		"heure_debut": apt.HeureDebut,
		"heure_fin":   apt.HeureFin,
		"type":        strings.TrimSpace(apt.Type),
		"statut":      string(apt.Status),
	}
	if apt.Notes != nil {
		row["notes"] = *apt.Notes
	}

	inserted, err := s.store.Insert(ctx, types.TableAppointments, row)
	if err != nil {
		s.notifyError("Impossible de créer le rendez-vous", err)
		return nil, err
	}
	created, err := decodeAppointment(inserted)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"patient_id":     created.PatientID,
		"date":           created.Date,
	}).Info("Appointment created")
	s.notify(types.NotifySuccess, "Rendez-vous créé", "Le rendez-vous a été ajouté à l'agenda.")
	return created, nil
}

// Get returns one appointment with its patient
func (s *Service) Get(ctx context.Context, id string) (*types.Appointment, error) {
	row, err := rowstore.Get(ctx, s.store, types.TableAppointments, id)
	if err != nil {
		return nil, err
	}
	apt, err := decodeAppointment(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachPatients(ctx, []*types.Appointment{apt}); err != nil {
		return nil, err
	}
	return apt, nil
}

// Update applies the non-nil fields of updates
func (s *Service) Update(ctx context.Context, id string, updates *types.AppointmentUpdates) (*types.Appointment, error) {
	if err := validateUpdates(updates); err != nil {
		s.notifyError("Impossible de modifier", err)
		return nil, err
	}

	row, err := s.store.Update(ctx, types.TableAppointments, id, updates.Row())
	if err != nil {
		s.notifyError("Impossible de modifier", err)
		return nil, err
	}
	apt, err := decodeAppointment(row)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("appointment_id", id).Info("Appointment updated")
	s.notify(types.NotifySuccess, "Rendez-vous modifié", "Les modifications ont été enregistrées.")
	return apt, nil
}

// Delete removes an appointment
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, types.TableAppointments, id); err != nil {
		s.notifyError("Impossible de supprimer", err)
		return err
	}
	s.logger.WithField("appointment_id", id).Info("Appointment deleted")
	s.notify(types.NotifySuccess, "Rendez-vous supprimé", "Le rendez-vous a été supprimé de l'agenda.")
	return nil
}

// ListByDate returns the appointments of one date ordered by start time
func (s *Service) ListByDate(ctx context.Context, date string) ([]*types.Appointment, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	return s.ListRange(ctx, date, date)
}

// ListRange returns the appointments dated from through to inclusive,
// ordered by date then start time
func (s *Service) ListRange(ctx context.Context, from, to string) ([]*types.Appointment, error) {
	if err := validateDate(from); err != nil {
		return nil, err
	}
	if err := validateDate(to); err != nil {
		return nil, err
	}

	q := types.NewQuery().
		Gte("date", from).
		Lte("date", to).
		OrderAsc("date").
		OrderAsc("heure_debut")
	rows, err := s.store.List(ctx, types.TableAppointments, q)
	if err != nil {
		return nil, err
	}

	appts := make([]*types.Appointment, 0, len(rows))
	for _, row := range rows {
		apt, err := decodeAppointment(row)
		if err != nil {
			return nil, err
		}
		appts = append(appts, apt)
	}
	if err := s.attachPatients(ctx, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// Week returns the grid of the Monday-started week containing anyDay
func (s *Service) Week(ctx context.Context, anyDay time.Time) (*WeekGrid, error) {
	start := StartOfWeek(anyDay.In(s.location))
	end := start.AddDate(0, 0, DefaultDays-1)

	appts, err := s.ListRange(ctx, start.Format(types.DateLayout), end.Format(types.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to load week: %w", err)
	}
	return BuildWeekGrid(appts, start, DefaultDays, s.hours), nil
}

// Day returns the appointments of day's date ordered by start time
func (s *Service) Day(ctx context.Context, day time.Time) ([]*types.Appointment, error) {
	date := day.In(s.location).Format(types.DateLayout)
	appts, err := s.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load day: %w", err)
	}
	return DayAgenda(appts, date), nil
}

func (s *Service) attachPatients(ctx context.Context, appts []*types.Appointment) error {
	ids := make([]string, 0, len(appts))
	for _, apt := range appts {
		ids = append(ids, apt.PatientID)
	}
	patients, err := rowstore.PatientSummaries(ctx, s.store, ids)
	if err != nil {
		return err
	}
	for _, apt := range appts {
		apt.Patient = patients[apt.PatientID]
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

func validateAppointment(apt *types.Appointment) error {
	if apt == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment is required", nil)
	}
	if strings.TrimSpace(apt.PatientID) == "" {
		return types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	if err := validateDate(apt.Date); err != nil {
		return err
	}
	if err := validateTime("heure_debut", apt.HeureDebut); err != nil {
		return err
	}
	if err := validateTime("heure_fin", apt.HeureFin); err != nil {
		return err
	}
	if strings.TrimSpace(apt.Type) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment type is required", nil)
	}
	if apt.Status != "" && !apt.Status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unknown appointment status",
			map[string]interface{}{"statut": string(apt.Status)})
	}
	return nil
}

func validateUpdates(u *types.AppointmentUpdates) error {
	if u == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "updates are required", nil)
	}
	if u.PatientID != nil && strings.TrimSpace(*u.PatientID) == "" {
		return types.NewValidationError(types.ErrCodeMissingPatient, "patient id is required", nil)
	}
	if u.Date != nil {
		if err := validateDate(*u.Date); err != nil {
			return err
		}
	}
	if u.HeureDebut != nil {
		if err := validateTime("heure_debut", *u.HeureDebut); err != nil {
			return err
		}
	}
	if u.HeureFin != nil {
		if err := validateTime("heure_fin", *u.HeureFin); err != nil {
			return err
		}
	}
	if u.Type != nil && strings.TrimSpace(*u.Type) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "appointment type is required", nil)
	}
	if u.Status != nil && !u.Status.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unknown appointment status",
			map[string]interface{}{"statut": string(*u.Status)})
	}
	return nil
}

func validateDate(date string) error {
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "date must be YYYY-MM-DD",
			map[string]interface{}{"date": date})
	}
	return nil
}

// validateTime requires the fixed-width HH:MM form the day ordering relies on
func validateTime(field, value string) error {
	if len(value) != len(types.TimeLayout) {
		return types.NewValidationError(types.ErrCodeInvalidInput, field+" must be HH:MM",
			map[string]interface{}{field: value})
	}
	if _, err := time.Parse(types.TimeLayout, value); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, field+" must be HH:MM",
			map[string]interface{}{field: value})
	}
	return nil
}

func decodeAppointment(row types.Row) (*types.Appointment, error) {
	var apt types.Appointment
	if err := row.Decode(&apt); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode appointment", err)
	}
	return &apt, nil
}
