package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type OAuthProviderStore interface {
	FindBySubject(ctx context.Context, provider, subject string) (*models.OAuthProvider, error)
	FindByUser(ctx context.Context, userID, provider string) (*models.OAuthProvider, error)
	Create(ctx context.Context, link *models.OAuthProvider) error
}

// AccountStore lookups are scoped to an owner: an account belonging to someone
// else is reported as not found.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	GetForOwner(ctx context.Context, id, userID string) (*models.Account, error)
	// GetForOwnerForUpdate locks the row until the surrounding unit of work ends.
	GetForOwnerForUpdate(ctx context.Context, id, userID string) (*models.Account, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.Account, error)
	ListAll(ctx context.Context) ([]models.Account, error)
	ExistsByName(ctx context.Context, userID, name string) (bool, error)
	Update(ctx context.Context, account *models.Account) error
	SetActive(ctx context.Context, id, userID string, active bool) error
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	Delete(ctx context.Context, id, userID string) error
}

type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetForOwner(ctx context.Context, id, userID string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	ListByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
	Delete(ctx context.Context, id string) error
	SumsByAccount(ctx context.Context) ([]models.TypeSum, error)
}

// Tx exposes the stores bound to one database transaction.
type Tx interface {
	Users() UserStore
	OAuthProviders() OAuthProviderStore
	Accounts() AccountStore
	Transactions() TransactionStore
}

// UnitOfWork runs fn atomically. Any error returned by fn, or a panic, rolls
// every write back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// SnapshotReader runs fn against one consistent, read-only view of the data.
// Writes committed while fn runs are not visible to it.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error
}

// Store is the Postgres write store. Its own accessors run outside a
// transaction and are used for plain reads.
type Store struct {
	db *sql.DB
}

var (
	_ UnitOfWork     = (*Store)(nil)
	_ SnapshotReader = (*Store)(nil)
)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(stores{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction so every
// statement sees the same snapshot.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read snapshot: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	return fn(stores{q: sqlTx})
}

func (s *Store) Users() UserStore                   { return stores{q: s.db}.Users() }
func (s *Store) OAuthProviders() OAuthProviderStore { return stores{q: s.db}.OAuthProviders() }
func (s *Store) Accounts() AccountStore             { return stores{q: s.db}.Accounts() }
func (s *Store) Transactions() TransactionStore     { return stores{q: s.db}.Transactions() }

type stores struct {
	q querier
}

func (s stores) Users() UserStore                   { return &UserRepository{q: s.q} }
func (s stores) OAuthProviders() OAuthProviderStore { return &OAuthProviderRepository{q: s.q} }
func (s stores) Accounts() AccountStore             { return &AccountRepository{q: s.q} }
func (s stores) Transactions() TransactionStore     { return &TransactionRepository{q: s.q} }

// uniqueViolation reports whether err is a Postgres unique constraint failure.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func checkAffected(result sql.Result, resource, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound(resource, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
