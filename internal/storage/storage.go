// Package storage opens the bot database and owns schema migration and
// dataset import. Everything else goes through internal/repository.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Azelphur/Monord/internal/models"
	logx "github.com/Azelphur/Monord/pkg/logx"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Open opens (or creates) the sqlite database and migrates the schema.
func Open(cfg Config, log logx.Logger) (*gorm.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL"
	if cfg.BusyTimeout > 0 {
		dsn += fmt.Sprintf("&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite prefers a small number of concurrent writers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database opened", logx.String("path", path))
	return db, nil
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Gym{},
		&models.GymAlias{},
		&models.Pokemon{},
		&models.Raid{},
		&models.Embed{},
		&models.ChatConfig{},
		&models.Going{},
	)
}
