package repository

import (
	"context"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	viewcache "github.com/fintrack/finance-service/internal/redis"
	goredis "github.com/redis/go-redis/v9"
)

const accountViewKeyPrefix = "account:view:"

// accountCacheEntry is the Redis representation of an account. The public
// view hides UserID, so the owner travels in its own field for ownership checks.
type accountCacheEntry struct {
	models.AccountView
	OwnerID string `json:"ownerId"`
}

// AccountReadRepository serves account views from Redis, falling back to
// Postgres and warming the cache on every cold read.
type AccountReadRepository struct {
	accounts AccountStore
	cache    *viewcache.ViewCache[accountCacheEntry]
}

func NewAccountReadRepository(accounts AccountStore, redisClient *goredis.Client, ttl time.Duration) *AccountReadRepository {
	return &AccountReadRepository{
		accounts: accounts,
		cache:    viewcache.NewViewCache[accountCacheEntry](redisClient, accountViewKeyPrefix, ttl),
	}
}

// GetByID returns the view of an account owned by userID.
func (r *AccountReadRepository) GetByID(ctx context.Context, id, userID string) (*models.AccountView, error) {
	if entry, ok := r.cache.Get(ctx, id); ok {
		if entry.OwnerID != userID {
			return nil, apperr.NotFound("account", id)
		}
		view := entry.AccountView
		view.UserID = entry.OwnerID
		return &view, nil
	}

	account, err := r.accounts.GetForOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	r.CacheAccount(ctx, account)
	return account.View(), nil
}

// ListByUser always reads Postgres; lists are not cached.
func (r *AccountReadRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.AccountView, error) {
	accounts, err := r.accounts.ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]models.AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, *accounts[i].View())
	}
	return views, nil
}

// Refresh reloads an account from Postgres into the cache.
func (r *AccountReadRepository) Refresh(ctx context.Context, id, userID string) error {
	account, err := r.accounts.GetForOwner(ctx, id, userID)
	if err != nil {
		return err
	}
	r.CacheAccount(ctx, account)
	return nil
}

func (r *AccountReadRepository) CacheAccount(ctx context.Context, account *models.Account) {
	r.cache.Set(ctx, account.ID, &accountCacheEntry{AccountView: *account.View(), OwnerID: account.UserID})
}

func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, ids ...string) {
	r.cache.Delete(ctx, ids...)
}
