package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/pkg/config"
	"github.com/pawtograder/office-hours/pkg/database"
	"github.com/pawtograder/office-hours/pkg/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down (one step)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, *direction); err != nil {
		logr.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	version, dirty, err := database.Version(db)
	if err != nil {
		logr.Fatal("read migration version", zap.Error(err))
	}
	logr.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
