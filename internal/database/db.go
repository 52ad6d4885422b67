package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pos-system/internal/database/models"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

func NewConnection(dsn string, opts Options) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

// postgresTypes creates the enum types and the email domain the models refer
// to. Each statement is idempotent.
var postgresTypes = []string{
	`DO $$ BEGIN
		CREATE TYPE edit_action AS ENUM ('add', 'remove');
	EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	`DO $$ BEGIN
		CREATE TYPE permission AS ENUM ('a', 'b', 'c');
	EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
}

func emailDomainSQL() string {
	return fmt.Sprintf(`DO $$ BEGIN
		CREATE DOMAIN email AS TEXT CHECK (VALUE ~ '%s');
	EXCEPTION WHEN duplicate_object THEN NULL; END $$;`, escapeLiteral(models.EmailPattern))
}

func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Migrate creates every table of the point-of-sale schema.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		for _, stmt := range append(postgresTypes, emailDomainSQL()) {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create schema types: %w", err)
			}
		}
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	logrus.WithField("dialect", db.Dialector.Name()).Info("Schema migrated")
	return nil
}
