package store

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/store/model"
)

// slogWriter adapts slog to gorm's Printf-style logger.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

// InitDB opens the configured database. Anything but pgsql falls back to a
// file-backed sqlite store, which is what dev and tests run on.
func InitDB(cfg common.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	var dia gorm.Dialector
	if cfg.Type == "pgsql" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d dbname=%s",
			cfg.Hostname, cfg.User, cfg.Password, cfg.Port, cfg.Name)
		dia = postgres.Open(dsn)
	} else {
		dia = sqlite.Open(cfg.Name)
	}

	gormLogger := logger.New(
		slogWriter{log: log.With("component", "gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dia, &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		log.Error("store.open_failed", "type", cfg.Type, "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("store.connected", "type", cfg.Type, "name", cfg.Name)
	return db, nil
}

// Migrate creates or updates the schema for the pipeline's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Document{}, &model.Template{}, &model.ExportJob{})
}
