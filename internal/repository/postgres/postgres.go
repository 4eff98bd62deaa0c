package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// dialect builds the dynamic search queries.
var dialect = goqu.Dialect("postgres")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Retryable SQLSTATE codes: exclusion_violation, serialization_failure and
// deadlock_detected.
var retryableCodes = map[pq.ErrorCode]bool{
	"23P01": true,
	"40001": true,
	"40P01": true,
}

type Store struct {
	db         *sql.DB
	maxRetries int
	repository.ToolRepository
	repository.MemberRepository
	repository.ReservationRepository
	repository.LoanRepository
}

func NewStore(db *sql.DB, maxRetries int) *Store {
	return &Store{
		db:                    db,
		maxRetries:            maxRetries,
		ToolRepository:        NewToolRepository(db),
		MemberRepository:      NewMemberRepository(db),
		ReservationRepository: NewReservationRepository(db),
		LoanRepository:        NewLoanRepository(db),
	}
}

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Tools:        s.ToolRepository,
		Members:      s.MemberRepository,
		Reservations: s.ReservationRepository,
		Loans:        s.LoanRepository,
	}
}

func txRepositories(tx *sql.Tx) repository.Repositories {
	return repository.Repositories{
		Tools:        &toolRepository{db: tx, inTx: true},
		Members:      &memberRepository{db: tx},
		Reservations: &reservationRepository{db: tx},
		Loans:        &loanRepository{db: tx},
	}
}

// WithinTx runs fn in a read-committed transaction. Conflicts reported by the
// database (overlap exclusion, serialization failure, deadlock) restart fn
// from scratch up to maxRetries times.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt >= s.maxRetries {
			return err
		}
		logger.Warn("Retrying transaction after conflict", "attempt", attempt+1, "error", err)
	}
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, txRepositories(tx)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code]
	}
	return false
}

// EnsureSchema creates the booking tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	logger.DatabaseCall("exec", "schema.sql")
	_, err := db.ExecContext(ctx, schema)
	logger.DatabaseResult("exec", 0, err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
