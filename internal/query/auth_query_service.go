package query

import (
	"context"
	"errors"
	"strings"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/utils"
)

// AuthQueryService handles login and token refresh. There's no command
// service for these because they don't mutate application state.
type AuthQueryService struct {
	users UserReader
}

func NewAuthQueryService(users UserReader) *AuthQueryService {
	return &AuthQueryService{users: users}
}

func (s *AuthQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(cmd.Email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", err
	}
	if !user.Enabled || !utils.CheckPassword(cmd.Password, user.PasswordHash) {
		return "", apperr.Unauthorized("invalid credentials")
	}
	return middleware.IssueToken(user.ID, user.Email)
}

// RefreshToken exchanges a valid token for a fresh one, provided the user
// still exists and is enabled.
func (s *AuthQueryService) RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (string, error) {
	claims, err := middleware.ParseToken(cmd.Token)
	if err != nil {
		return "", apperr.Unauthorized("invalid token")
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Unauthorized("invalid token")
	}
	if err != nil {
		return "", err
	}
	if !user.Enabled {
		return "", apperr.Unauthorized("account is disabled")
	}
	return middleware.IssueToken(user.ID, user.Email)
}
