package repository

import (
	"context"
	"time"

	"github.com/fintrack/finance-service/internal/models"
	viewcache "github.com/fintrack/finance-service/internal/redis"
	goredis "github.com/redis/go-redis/v9"
)

const userViewKeyPrefix = "user:view:"

// UserReadRepository serves user views from Redis first, then Postgres.
type UserReadRepository struct {
	users UserStore
	cache *viewcache.ViewCache[models.UserView]
}

func NewUserReadRepository(users UserStore, redisClient *goredis.Client, ttl time.Duration) *UserReadRepository {
	return &UserReadRepository{
		users: users,
		cache: viewcache.NewViewCache[models.UserView](redisClient, userViewKeyPrefix, ttl),
	}
}

func (r *UserReadRepository) GetByID(ctx context.Context, id string) (*models.UserView, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return view, nil
	}

	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := user.View()
	r.cache.Set(ctx, id, view)
	return view, nil
}

// GetByEmail returns the full write model; credentials are never cached.
func (r *UserReadRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.users.GetByEmail(ctx, email)
}

func (r *UserReadRepository) CacheUser(ctx context.Context, user *models.User) {
	r.cache.Set(ctx, user.ID, user.View())
}

func (r *UserReadRepository) InvalidateUserView(ctx context.Context, userID string) {
	r.cache.Delete(ctx, userID)
}
