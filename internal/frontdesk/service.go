// Package frontdesk exposes the clinic front desk over HTTP: the walk-in
// queue, the appointment agenda, patient records, invoices and a websocket
// feed for the waiting-room screens.
package frontdesk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mehdi-it48/medisync-lite/internal/agenda"
	"github.com/mehdi-it48/medisync-lite/internal/billing"
	"github.com/mehdi-it48/medisync-lite/internal/notify"
	"github.com/mehdi-it48/medisync-lite/internal/queue"
	"github.com/mehdi-it48/medisync-lite/internal/records"
	"github.com/mehdi-it48/medisync-lite/pkg/config"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators the HTTP layer dispatches to. Metrics,
// Tracing and Health are optional.
type Dependencies struct {
	Queue   *queue.Engine
	Agenda  *agenda.Service
	Billing *billing.Service
	Records *records.Service
	Hub     *notify.Hub
	Metrics *monitoring.MetricsCollector
	Tracing *monitoring.TracingManager
	Health  *monitoring.HealthManager
}

// Service is the front-desk HTTP API
type Service struct {
	config *config.Config
	logger *logger.Logger
	log    *logrus.Entry
	tokens *TokenValidator
	clock  func() time.Time

	queue   *queue.Engine
	agenda  *agenda.Service
	billing *billing.Service
	records *records.Service
	hub     *notify.Hub
	metrics *monitoring.MetricsCollector
	tracing *monitoring.TracingManager
	health  *monitoring.HealthManager

	router *mux.Router
	server *http.Server
}

// New creates the front-desk API and configures its routes
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) *Service {
	s := &Service{
		config:  cfg,
		logger:  log,
		log:     log.WithComponent("frontdesk"),
		tokens:  NewTokenValidator(cfg.JWT),
		clock:   time.Now,
		queue:   deps.Queue,
		agenda:  deps.Agenda,
		billing: deps.Billing,
		records: deps.Records,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		tracing: deps.Tracing,
		health:  deps.Health,
	}
	if s.health == nil {
		s.health = monitoring.NewHealthManager("frontdesk", "dev")
	}

	s.router = mux.NewRouter()
	s.setupRoutes(s.router)
	return s
}

// Handler returns the root HTTP handler
func (s *Service) Handler() http.Handler {
	return s.router
}

// Tokens returns the validator used to authenticate requests
func (s *Service) Tokens() *TokenValidator {
	return s.tokens
}

// Start listens on addr and blocks until the server stops
func (s *Service) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.log.WithField("addr", addr).Info("Starting front-desk service")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop closes websocket clients and shuts the server down gracefully
func (s *Service) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// routeTemplate labels metrics and spans with the matched route rather than
// the raw path
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
