package query

import (
	"context"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/models"
)

type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.UserView, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserQueryService reads user views from the Redis cache (with a Postgres fallback).
type UserQueryService struct {
	readRepo UserReader
}

func NewUserQueryService(readRepo UserReader) *UserQueryService {
	return &UserQueryService{readRepo: readRepo}
}

// GetUser only resolves the caller's own profile.
func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	if q.UserID != q.RequestingUserID {
		return nil, apperr.NotFound("user", q.UserID)
	}
	return s.readRepo.GetByID(ctx, q.UserID)
}
