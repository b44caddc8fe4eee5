package repository

import (
	"context"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	viewcache "github.com/fintrack/finance-service/internal/redis"
	goredis "github.com/redis/go-redis/v9"
)

const transactionViewKeyPrefix = "transaction:view:"

type transactionCacheEntry struct {
	models.TransactionView
	OwnerID string `json:"ownerId"`
}

// TransactionReadRepository serves transaction views from Redis, falling back
// to Postgres on a miss.
type TransactionReadRepository struct {
	transactions TransactionStore
	cache        *viewcache.ViewCache[transactionCacheEntry]
}

func NewTransactionReadRepository(transactions TransactionStore, redisClient *goredis.Client, ttl time.Duration) *TransactionReadRepository {
	return &TransactionReadRepository{
		transactions: transactions,
		cache:        viewcache.NewViewCache[transactionCacheEntry](redisClient, transactionViewKeyPrefix, ttl),
	}
}

func (r *TransactionReadRepository) GetByID(ctx context.Context, id, userID string) (*models.TransactionView, error) {
	if entry, ok := r.cache.Get(ctx, id); ok {
		if entry.OwnerID != userID {
			return nil, apperr.NotFound("transaction", id)
		}
		view := entry.TransactionView
		view.UserID = entry.OwnerID
		return &view, nil
	}

	txn, err := r.transactions.GetForOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	r.CacheTransaction(ctx, txn)
	return txn.View(), nil
}

// List returns the user's transactions, narrowed to one account when accountID is set.
func (r *TransactionReadRepository) List(ctx context.Context, userID, accountID string) ([]models.TransactionView, error) {
	var (
		txns []models.Transaction
		err  error
	)
	if accountID != "" {
		txns, err = r.transactions.ListByAccount(ctx, accountID, userID)
	} else {
		txns, err = r.transactions.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	views := make([]models.TransactionView, 0, len(txns))
	for i := range txns {
		views = append(views, *txns[i].View())
	}
	return views, nil
}

func (r *TransactionReadRepository) CacheTransaction(ctx context.Context, txn *models.Transaction) {
	r.cache.Set(ctx, txn.ID, &transactionCacheEntry{TransactionView: *txn.View(), OwnerID: txn.UserID})
}

func (r *TransactionReadRepository) InvalidateTransactionView(ctx context.Context, ids ...string) {
	r.cache.Delete(ctx, ids...)
}
