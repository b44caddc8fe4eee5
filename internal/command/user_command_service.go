package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/fintrack/finance-service/internal/utils"
)

// UserCommandService writes user state to Postgres and keeps the Redis read
// model up to date.
type UserCommandService struct {
	uow          repository.UnitOfWork
	users        UserViewCache
	accounts     AccountViewCache
	transactions TransactionViewCache
	publisher    events.Publisher
	now          func() time.Time
}

func NewUserCommandService(
	uow repository.UnitOfWork,
	users UserViewCache,
	accounts AccountViewCache,
	transactions TransactionViewCache,
	publisher events.Publisher,
) *UserCommandService {
	return &UserCommandService{
		uow:          uow,
		users:        users,
		accounts:     accounts,
		transactions: transactions,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserCommandService) RegisterUser(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.User, error) {
	passwordHash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	user := &models.User{
		ID:           utils.NewID(),
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		Email:        normalizeEmail(cmd.Email),
		PasswordHash: passwordHash,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		exists, err := tx.Users().ExistsByEmail(ctx, user.Email)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("email %s already registered", user.Email)
		}
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.users.CacheUser(ctx, user)
	events.PublishOrLog(ctx, s.publisher, events.UserEventsStream, events.UserCreated, events.UserEvent{UserID: user.ID, Email: user.Email})
	return user, nil
}

// UpdateUser only lets users edit themselves; anyone else sees not found.
func (s *UserCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.User, error) {
	if cmd.UserID != cmd.RequestingUserID {
		return nil, apperr.NotFound("user", cmd.UserID)
	}

	var passwordHash string
	if cmd.Password != "" {
		hash, err := utils.HashPassword(cmd.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = hash
	}

	var user *models.User
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.Users().GetByID(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		email := normalizeEmail(cmd.Email)
		if email != user.Email {
			exists, err := tx.Users().ExistsByEmail(ctx, email)
			if err != nil {
				return err
			}
			if exists {
				return apperr.Conflict("email %s already registered", email)
			}
		}
		user.FirstName = strings.TrimSpace(cmd.FirstName)
		user.LastName = strings.TrimSpace(cmd.LastName)
		user.Email = email
		if passwordHash != "" {
			user.PasswordHash = passwordHash
		}
		user.UpdatedAt = s.now()
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.users.CacheUser(ctx, user)
	events.PublishOrLog(ctx, s.publisher, events.UserEventsStream, events.UserUpdated, events.UserEvent{UserID: user.ID, Email: user.Email})
	return user, nil
}

// DeleteUser removes the user; the database cascades to accounts,
// transactions and provider links, so their cached views are dropped too.
func (s *UserCommandService) DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	if cmd.UserID != cmd.RequestingUserID {
		return apperr.NotFound("user", cmd.UserID)
	}

	var accountIDs, txnIDs []string
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		accounts, err := tx.Accounts().ListByUser(ctx, cmd.UserID, false)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			accountIDs = append(accountIDs, a.ID)
		}
		txns, err := tx.Transactions().ListByUser(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		txnIDs = transactionIDs(txns)
		return tx.Users().Delete(ctx, cmd.UserID)
	})
	if err != nil {
		return err
	}

	s.users.InvalidateUserView(ctx, cmd.UserID)
	s.accounts.InvalidateAccountView(ctx, accountIDs...)
	s.transactions.InvalidateTransactionView(ctx, txnIDs...)
	events.PublishOrLog(ctx, s.publisher, events.UserEventsStream, events.UserDeleted, events.UserEvent{UserID: cmd.UserID})
	return nil
}

// FindOrCreateOAuthUser resolves a provider identity to a local user: an
// existing link wins, then a user with the same email gets linked, otherwise
// a password-less user is created together with the link.
func (s *UserCommandService) FindOrCreateOAuthUser(ctx context.Context, cmd cqrs.OAuthLoginCommand) (*models.User, error) {
	if cmd.Provider == "" || cmd.Subject == "" {
		return nil, apperr.Validation("provider identity is incomplete")
	}
	email := normalizeEmail(cmd.Email)

	var (
		user    *models.User
		created bool
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		link, err := tx.OAuthProviders().FindBySubject(ctx, cmd.Provider, cmd.Subject)
		switch {
		case err == nil:
			user, err = tx.Users().GetByID(ctx, link.UserID)
			if err != nil {
				return err
			}
			return requireEnabled(user)
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}

		if email == "" {
			return apperr.Validation("%s did not return an email address", cmd.Provider)
		}

		now := s.now()
		user, err = tx.Users().GetByEmail(ctx, email)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			first, last := utils.SplitName(cmd.Name)
			if first == "" {
				first = email
			}
			user = &models.User{
				ID:        utils.NewID(),
				FirstName: first,
				LastName:  last,
				Email:     email,
				Enabled:   true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Users().Create(ctx, user); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if err := requireEnabled(user); err != nil {
				return err
			}
			// One identity per provider: a different subject of the same
			// provider must not take over an already linked user.
			existing, err := tx.OAuthProviders().FindByUser(ctx, user.ID, cmd.Provider)
			switch {
			case err == nil:
				return apperr.Conflict("user is already linked to another %s identity", existing.Provider)
			case !errors.Is(err, apperr.ErrNotFound):
				return err
			}
		}

		return tx.OAuthProviders().Create(ctx, &models.OAuthProvider{
			ID:         utils.NewID(),
			UserID:     user.ID,
			Provider:   cmd.Provider,
			ProviderID: cmd.Subject,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.users.CacheUser(ctx, user)
		events.PublishOrLog(ctx, s.publisher, events.UserEventsStream, events.UserCreated, events.UserEvent{UserID: user.ID, Email: user.Email})
		slog.Info("user created from oauth login", "user_id", user.ID, "provider", cmd.Provider)
	}
	return user, nil
}

func requireEnabled(user *models.User) error {
	if !user.Enabled {
		return apperr.Unauthorized("account is disabled")
	}
	return nil
}
