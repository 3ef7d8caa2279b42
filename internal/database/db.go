package database

import (
	"fmt"
	"strings"
	"time"

	"celulas-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Open conecta ao banco indicado pela URL. "sqlite:<arquivo>" abre SQLite
// (desenvolvimento local e testes); qualquer outra coisa é tratada como DSN do Postgres.
func Open(url string, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	if path, ok := strings.CutPrefix(url, sqlitePrefix); ok {
		dialector = sqlite.Open(path + "?_foreign_keys=on&_busy_timeout=5000")
	} else {
		dialector = postgres.Open(url)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("conexão com o banco falhou: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		// SQLite aceita um escritor por vez
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	log.Info("database connected", zap.String("dialect", dialector.Name()))
	return db, nil
}

// Migrate cria/atualiza o esquema.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Cell{},
		&models.CellLeader{},
		&models.PrayerLog{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("migração falhou: %w", err)
	}

	log.Info("database migrated")
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
