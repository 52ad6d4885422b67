package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pos-system/internal/errs"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Store bundles the connection with the transaction retry budget shared by
// all service handlers.
type Store struct {
	DB         *gorm.DB
	MaxRetries int
	Backoff    time.Duration
}

func NewStore(db *gorm.DB, maxRetries int) *Store {
	return &Store{
		DB:         db,
		MaxRetries: maxRetries,
		Backoff:    20 * time.Millisecond,
	}
}

// InTx runs fn in a single transaction. Either every row effect of fn is
// committed or none is. Transient conflicts are retried up to MaxRetries
// times; every other error is returned classified and unretried.
func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = Classify(s.DB.WithContext(ctx).Transaction(fn))
		if !errs.IsRetryable(err) || attempt >= s.MaxRetries {
			return err
		}

		logrus.WithError(err).WithField("attempt", attempt+1).Warn("Retrying transaction after store conflict")

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(s.Backoff * time.Duration(attempt+1)):
		}
	}
}

// Read returns a session bound to ctx for queries outside a transaction.
func (s *Store) Read(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// ForUpdate locks the selected rows until the surrounding transaction ends.
// Dialects without row locks (sqlite) drop the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Classify maps store errors onto the error taxonomy. Errors that already
// carry a kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", errs.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %w", errs.ErrConstraintViolation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation:
			return fmt.Errorf("%w: %w", errs.ErrConstraintViolation, err)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", errs.ErrRetryable, err)
		}
	}

	return err
}
