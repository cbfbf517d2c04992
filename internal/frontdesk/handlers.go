package frontdesk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mehdi-it48/medisync-lite/internal/billing"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// setupRoutes configures HTTP routes for the front-desk service
func (s *Service) setupRoutes(router *mux.Router) {
	if s.metrics != nil || s.tracing != nil {
		router.Use(monitoring.NewMonitoringMiddleware(s.metrics, s.tracing, s.logger, routeTemplate).HTTPMiddleware)
	}

	router.HandleFunc(s.healthPath(), s.health.HTTPHandler()).Methods("GET")
	if s.metrics != nil {
		router.Handle(s.metricsPath(), s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	// Walk-in queue
	api.HandleFunc("/queue", s.enqueueHandler).Methods("POST")
	api.HandleFunc("/queue", s.listQueueHandler).Methods("GET")
	api.HandleFunc("/queue/board", s.boardHandler).Methods("GET")
	api.HandleFunc("/queue/{id}/status", s.advanceHandler).Methods("PUT")
	api.HandleFunc("/queue/{id}", s.removeQueueEntryHandler).Methods("DELETE")

	// Agenda
	api.HandleFunc("/agenda/week", s.weekHandler).Methods("GET")
	api.HandleFunc("/agenda/day", s.dayHandler).Methods("GET")
	api.HandleFunc("/appointments", s.createAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}", s.getAppointmentHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}", s.updateAppointmentHandler).Methods("PUT")
	api.HandleFunc("/appointments/{id}", s.deleteAppointmentHandler).Methods("DELETE")

	// Patients and their records
	api.HandleFunc("/patients", s.listPatientsHandler).Methods("GET")
	api.HandleFunc("/patients", s.createPatientHandler).Methods("POST")
	api.HandleFunc("/patients/{id}", s.getPatientHandler).Methods("GET")
	api.HandleFunc("/patients/{id}", s.updatePatientHandler).Methods("PUT")
	api.HandleFunc("/patients/{id}", s.deletePatientHandler).Methods("DELETE")
	api.HandleFunc("/patients/{id}/record", s.getMedicalRecordHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/record", s.upsertMedicalRecordHandler).Methods("PUT")
	api.HandleFunc("/patients/{id}/documents", s.listDocumentsHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/documents", s.createDocumentHandler).Methods("POST")
	api.HandleFunc("/documents/{id}", s.deleteDocumentHandler).Methods("DELETE")

	// Billing
	api.HandleFunc("/invoices", s.listInvoicesHandler).Methods("GET")
	api.HandleFunc("/invoices", s.createInvoiceHandler).Methods("POST")
	api.HandleFunc("/invoices/{id}", s.getInvoiceHandler).Methods("GET")
	api.HandleFunc("/invoices/{id}", s.updateInvoiceHandler).Methods("PUT")
	api.HandleFunc("/invoices/{id}", s.deleteInvoiceHandler).Methods("DELETE")
	api.HandleFunc("/invoices/{id}/pay", s.payInvoiceHandler).Methods("POST")
	api.HandleFunc("/stats/monthly", s.monthlyStatsHandler).Methods("GET")

	api.HandleFunc("/labels", s.labelsHandler).Methods("GET")

	// Live feed
	if s.hub != nil {
		api.Handle("/ws", s.hub).Methods("GET")
	}

	s.log.Info("Front-desk routes configured")
}

func (s *Service) healthPath() string {
	if p := s.config.Monitoring.HealthPath; p != "" {
		return p
	}
	return "/health"
}

func (s *Service) metricsPath() string {
	if p := s.config.Monitoring.MetricsPath; p != "" {
		return p
	}
	return "/metrics"
}

// enqueueHandler adds a walk-in patient to today's queue
func (s *Service) enqueueHandler(w http.ResponseWriter, r *http.Request) {
	var req types.EnqueueRequest
	if !s.decode(w, r, &req) {
		return
	}

	entry, err := s.queue.Enqueue(r.Context(), s.clock(), req)
	s.audit(r, "queue.enqueue", types.TableQueue, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, entry)
}

func (s *Service) listQueueHandler(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}

	entries, err := s.queue.List(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, entries)
}

func (s *Service) boardHandler(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}

	board, err := s.queue.Board(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, board)
}

// advanceHandler moves a queue entry to the requested status
func (s *Service) advanceHandler(w http.ResponseWriter, r *http.Request) {
	var req types.StatusChangeRequest
	if !s.decode(w, r, &req) {
		return
	}

	entry, err := s.queue.Advance(r.Context(), s.clock(), mux.Vars(r)["id"], req.Status)
	s.audit(r, "queue.advance", types.TableQueue, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Service) removeQueueEntryHandler(w http.ResponseWriter, r *http.Request) {
	err := s.queue.Remove(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "queue.remove", types.TableQueue, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) payInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.queue.MarkInvoicePaid(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "invoice.pay", types.TableInvoices, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, invoice)
}

func (s *Service) weekHandler(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}

	grid, err := s.agenda.Week(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, grid)
}

func (s *Service) dayHandler(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}

	appts, err := s.agenda.Day(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, appts)
}

func (s *Service) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var apt types.Appointment
	if !s.decode(w, r, &apt) {
		return
	}

	created, err := s.agenda.Create(r.Context(), &apt)
	s.audit(r, "appointment.create", types.TableAppointments, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.agenda.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) updateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.AppointmentUpdates
	if !s.decode(w, r, &updates) {
		return
	}

	apt, err := s.agenda.Update(r.Context(), mux.Vars(r)["id"], &updates)
	s.audit(r, "appointment.update", types.TableAppointments, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, apt)
}

func (s *Service) deleteAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	err := s.agenda.Delete(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "appointment.delete", types.TableAppointments, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPatientsHandler lists patients, or searches them when q is given
func (s *Service) listPatientsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		patients []*types.Patient
		err      error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		patients, err = s.records.SearchPatients(r.Context(), q)
	} else {
		patients, err = s.records.ListPatients(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, patients)
}

func (s *Service) createPatientHandler(w http.ResponseWriter, r *http.Request) {
	var p types.Patient
	if !s.decode(w, r, &p) {
		return
	}

	created, err := s.records.CreatePatient(r.Context(), &p)
	s.audit(r, "patient.create", types.TablePatients, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getPatientHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.records.GetPatient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, p)
}

func (s *Service) updatePatientHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.PatientUpdates
	if !s.decode(w, r, &updates) {
		return
	}

	p, err := s.records.UpdatePatient(r.Context(), mux.Vars(r)["id"], &updates)
	s.audit(r, "patient.update", types.TablePatients, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, p)
}

func (s *Service) deletePatientHandler(w http.ResponseWriter, r *http.Request) {
	err := s.records.DeletePatient(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "patient.delete", types.TablePatients, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getMedicalRecordHandler answers null when the patient has no record yet
func (s *Service) getMedicalRecordHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.GetMedicalRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Service) upsertMedicalRecordHandler(w http.ResponseWriter, r *http.Request) {
	var fields types.MedicalRecordFields
	if !s.decode(w, r, &fields) {
		return
	}

	rec, err := s.records.UpsertMedicalRecord(r.Context(), mux.Vars(r)["id"], &fields)
	s.audit(r, "medical_record.upsert", types.TableMedicalRecords, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Service) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := s.records.ListDocuments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, docs)
}

func (s *Service) createDocumentHandler(w http.ResponseWriter, r *http.Request) {
	var doc types.Document
	if !s.decode(w, r, &doc) {
		return
	}
	doc.PatientID = mux.Vars(r)["id"]

	created, err := s.records.CreateDocument(r.Context(), &doc)
	s.audit(r, "document.create", types.TableDocuments, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) deleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	err := s.records.DeleteDocument(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "document.delete", types.TableDocuments, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.billing.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, invoices)
}

func (s *Service) createInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	var inv types.Invoice
	if !s.decode(w, r, &inv) {
		return
	}

	created, err := s.billing.Create(r.Context(), &inv)
	s.audit(r, "invoice.create", types.TableInvoices, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, created)
}

func (s *Service) getInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	inv, err := s.billing.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, inv)
}

func (s *Service) updateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.InvoiceUpdates
	if !s.decode(w, r, &updates) {
		return
	}

	inv, err := s.billing.Update(r.Context(), mux.Vars(r)["id"], &updates)
	s.audit(r, "invoice.update", types.TableInvoices, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, inv)
}

func (s *Service) deleteInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	err := s.billing.Delete(r.Context(), mux.Vars(r)["id"])
	s.audit(r, "invoice.delete", types.TableInvoices, err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// monthlyStatsHandler defaults to the current month
func (s *Service) monthlyStatsHandler(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = s.clock().In(s.config.Queue.Location()).Format(billing.MonthLayout)
	}

	stats, err := s.billing.MonthlyStats(r.Context(), month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, stats)
}

// labelsHandler serves the status label tables so every screen renders
// statuses the same way
func (s *Service) labelsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"queue":        types.QueueStatusLabels,
		"appointments": types.AppointmentStatusLabels,
		"invoices":     types.InvoiceStatusLabels,
	})
}

// dayParam reads ?date=YYYY-MM-DD as midnight in the clinic's zone,
// defaulting to now
func (s *Service) dayParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	loc := s.config.Queue.Location()
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.clock().In(loc), true
	}

	day, err := time.ParseInLocation(types.DateLayout, raw, loc)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return time.Time{}, false
	}
	return day, true
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func (s *Service) audit(r *http.Request, action, resource string, err error) {
	userID := ""
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID
	}
	details := map[string]interface{}{"path": r.URL.Path}
	if id := mux.Vars(r)["id"]; id != "" {
		details["id"] = id
	}
	s.logger.Audit(userID, action, resource, err == nil, details)
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch types.ErrorTypeOf(err) {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeTransition, types.ErrorTypeConflict:
		return http.StatusConflict
	case types.ErrorTypeStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Structured errors
// expose their code and details; anything else is reported generically.
func (s *Service) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	var ce *types.ClinicError
	if !errors.As(err, &ce) || status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
		s.writeJSONResponse(w, status, map[string]interface{}{
			"error":  strings.ToLower(http.StatusText(status)),
			"status": status,
		})
		return
	}

	response := map[string]interface{}{
		"error":  ce.Message,
		"code":   ce.Code,
		"status": status,
	}
	if len(ce.Details) > 0 {
		response["details"] = ce.Details
	}
	s.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
