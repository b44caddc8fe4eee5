package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, name, type, currency, description, balance, opening_balance, active, created_at, updated_at`

// AccountRepository is the Postgres implementation of AccountStore.
type AccountRepository struct {
	q querier
}

func scanAccount(row interface{ Scan(dest ...any) error }) (*models.Account, error) {
	var account models.Account
	var description sql.NullString
	err := row.Scan(
		&account.ID, &account.UserID, &account.Name, &account.Type, &account.Currency,
		&description, &account.Balance, &account.OpeningBalance, &account.Active,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Description = description.String
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q.ExecContext(ctx, query,
		account.ID, account.UserID, account.Name, account.Type, account.Currency,
		nullString(account.Description), account.Balance, account.OpeningBalance, account.Active,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return apperr.Conflict("account name %q already exists", account.Name)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetForOwner(ctx context.Context, id, userID string) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *AccountRepository) GetForOwnerForUpdate(ctx context.Context, id, userID string) (*models.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
}

func (r *AccountRepository) get(ctx context.Context, query, id, userID string) (*models.Account, error) {
	account, err := scanAccount(r.q.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *AccountRepository) ListAll(ctx context.Context) ([]models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) ExistsByName(ctx context.Context, userID, name string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1 AND name = $2)`, userID, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account name: %w", err)
	}
	return exists, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET name = $3, type = $4, currency = $5, description = $6,
			balance = $7, opening_balance = $8, active = $9, updated_at = $10
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.q.ExecContext(ctx, query,
		account.ID, account.UserID, account.Name, account.Type, account.Currency,
		nullString(account.Description), account.Balance, account.OpeningBalance,
		account.Active, account.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return apperr.Conflict("account name %q already exists", account.Name)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return checkAffected(result, "account", account.ID)
}

func (r *AccountRepository) SetActive(ctx context.Context, id, userID string, active bool) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET active = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		id, userID, active,
	)
	if err != nil {
		return fmt.Errorf("failed to set account active flag: %w", err)
	}
	return checkAffected(result, "account", id)
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`,
		id, balance,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return checkAffected(result, "account", id)
}

func (r *AccountRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return checkAffected(result, "account", id)
}
