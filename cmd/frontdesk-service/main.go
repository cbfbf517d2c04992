package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mehdi-it48/medisync-lite/internal/agenda"
	"github.com/mehdi-it48/medisync-lite/internal/billing"
	"github.com/mehdi-it48/medisync-lite/internal/frontdesk"
	"github.com/mehdi-it48/medisync-lite/internal/notify"
	"github.com/mehdi-it48/medisync-lite/internal/queue"
	"github.com/mehdi-it48/medisync-lite/internal/records"
	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/config"
	"github.com/mehdi-it48/medisync-lite/pkg/database"
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/redis/go-redis/v9"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("version", serviceVersion).Info("Starting front-desk service")

	metrics := monitoring.NewMetricsCollector(cfg.Tracing.ServiceName, nil)
	health := monitoring.NewHealthManager(cfg.Tracing.ServiceName, serviceVersion)

	var tracing *monitoring.TracingManager
	if cfg.Tracing.Enabled {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: serviceVersion,
			Environment:    cfg.Tracing.Environment,
			SamplingRate:   cfg.Tracing.SamplingRate,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize tracing")
		}
	}

	// Row store: Postgres when configured, in-memory otherwise
	var store interfaces.RowStore
	if cfg.Database.Enabled() {
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(); err != nil {
				log.WithError(err).Fatal("Failed to migrate database")
			}
		}

		pg := rowstore.NewPostgresStore(db, log)
		defer pg.Close()
		store = pg
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	} else {
		log.Warn("No database configured, using the in-memory row store")
		store = rowstore.NewMemoryStore(rowstore.ClinicUniqueKeys())
	}

	loc := cfg.Queue.Location()
	engineOpts := []queue.Option{
		queue.WithLocation(loc),
		queue.WithPolicy(queue.Policy{
			Strict:                  cfg.Queue.StrictTransitions,
			AllowConsultationCancel: cfg.Queue.AllowConsultationCancel,
		}),
		queue.WithMaxTicketRetries(cfg.Queue.MaxTicketRetries),
		queue.WithMetrics(metrics),
	}
	if tracing != nil {
		engineOpts = append(engineOpts, queue.WithTracer(tracing.Tracer("queue")))
	}

	if cfg.Queue.Allocator == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer client.Close()
		engineOpts = append(engineOpts, queue.WithAllocator(queue.NewRedisAllocator(client, store)))
		health.RegisterChecker("redis", monitoring.NewRedisHealthChecker(client))
	}

	// Notifications go to the log and to every connected screen
	hub := notify.NewHub(log)
	notifier := notify.NewFanout(metrics, notify.NewLogNotifier(log), hub)

	engine := queue.NewEngine(store, notifier, log, engineOpts...)
	invoices := billing.NewService(store, notifier, log, billing.WithLocation(loc), billing.WithMetrics(metrics))
	invoicer := billing.NewConsultationInvoicer(invoices)
	invoicer.Attach(engine.Events())
	defer invoicer.Detach()

	appointments := agenda.NewService(store, notifier, log,
		agenda.WithLocation(loc),
		agenda.WithHours(agenda.HourRange(cfg.Agenda.FirstHour, cfg.Agenda.LastHour)),
	)

	stopWatch, err := hub.WatchTables(store,
		types.TableQueue, types.TableInvoices, types.TableAppointments,
		types.TablePatients, types.TableMedicalRecords, types.TableDocuments,
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to table changes")
	}
	defer stopWatch()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board := queue.NewLiveBoard(engine, store, nil)
	stopBoardFeed := board.OnUpdate(func(b *queue.Board) {
		hub.Broadcast(notify.Message{Type: notify.MessageBoard, Payload: b})
	})
	defer stopBoardFeed()
	if err := board.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start live board")
	}
	defer board.Stop()

	service := frontdesk.New(cfg, log, frontdesk.Dependencies{
		Queue:   engine,
		Agenda:  appointments,
		Billing: invoices,
		Records: records.NewService(store, notifier, log),
		Hub:     hub,
		Metrics: metrics,
		Tracing: tracing,
		Health:  health,
	})

	// Start service in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Start(cfg.Server.Addr())
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Front-desk service stopped unexpectedly")
		}
	}

	log.Info("Shutting down front-desk service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := service.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to flush traces")
		}
	}
	log.Info("Front-desk service stopped")
}
