package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
)

const transactionColumns = `id, account_id, user_id, amount, type, date, description, category, created_at, updated_at`

// TransactionRepository is the Postgres implementation of TransactionStore.
type TransactionRepository struct {
	q querier
}

func scanTransaction(row interface{ Scan(dest ...any) error }) (*models.Transaction, error) {
	var txn models.Transaction
	var description, category sql.NullString
	err := row.Scan(
		&txn.ID, &txn.AccountID, &txn.UserID, &txn.Amount, &txn.Type, &txn.Date,
		&description, &category, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Description = description.String
	txn.Category = category.String
	return &txn, nil
}

func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		txn.ID, txn.AccountID, txn.UserID, txn.Amount, txn.Type, txn.Date,
		nullString(txn.Description), nullString(txn.Category), txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetForOwner(ctx context.Context, id, userID string) (*models.Transaction, error) {
	txn, err := scanTransaction(r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC, created_at DESC`,
		userID,
	)
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = $1 AND user_id = $2 ORDER BY date DESC, created_at DESC`,
		accountID, userID,
	)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func (r *TransactionRepository) Update(ctx context.Context, txn *models.Transaction) error {
	query := `
		UPDATE transactions
		SET account_id = $2, amount = $3, type = $4, date = $5,
			description = $6, category = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.q.ExecContext(ctx, query,
		txn.ID, txn.AccountID, txn.Amount, txn.Type, txn.Date,
		nullString(txn.Description), nullString(txn.Category), txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return checkAffected(result, "transaction", txn.ID)
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return checkAffected(result, "transaction", id)
}

// SumsByAccount totals amounts per account and type across every transaction.
func (r *TransactionRepository) SumsByAccount(ctx context.Context) ([]models.TypeSum, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT account_id, type, COALESCE(SUM(amount), 0) FROM transactions GROUP BY account_id, type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	var sums []models.TypeSum
	for rows.Next() {
		var sum models.TypeSum
		if err := rows.Scan(&sum.AccountID, &sum.Type, &sum.Total); err != nil {
			return nil, fmt.Errorf("failed to scan transaction sum: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}
