package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/mehdi-it48/medisync-lite/pkg/config"
	"github.com/mehdi-it48/medisync-lite/pkg/database"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to apply (negative rolls back); 0 applies all pending")
	down := flag.Bool("down", false, "roll back every migration")
	version := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if !cfg.Database.Enabled() {
		log.Fatal("No database configured")
	}

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		log.WithError(err).Fatal("Failed to create migrator")
	}

	switch {
	case *version:
	case *down:
		err = m.Down()
	case *steps != 0:
		err = m.Steps(*steps)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithError(err).Fatal("Migration failed")
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.WithError(err).Fatal("Failed to read schema version")
	}
	log.WithFields(map[string]interface{}{
		"version": v,
		"dirty":   dirty,
	}).Info("Schema version")
}
