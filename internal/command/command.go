// Package command holds the write side: every state change runs in one unit
// of work, and read-model upkeep plus event publishing happen only after commit.
package command

import (
	"context"

	"github.com/fintrack/finance-service/internal/models"
)

// AccountViewCache is the part of the account read model the write side maintains.
type AccountViewCache interface {
	CacheAccount(ctx context.Context, account *models.Account)
	InvalidateAccountView(ctx context.Context, ids ...string)
}

type TransactionViewCache interface {
	CacheTransaction(ctx context.Context, txn *models.Transaction)
	InvalidateTransactionView(ctx context.Context, ids ...string)
}

type UserViewCache interface {
	CacheUser(ctx context.Context, user *models.User)
	InvalidateUserView(ctx context.Context, userID string)
}

func transactionIDs(txns []models.Transaction) []string {
	ids := make([]string, len(txns))
	for i := range txns {
		ids[i] = txns[i].ID
	}
	return ids
}
