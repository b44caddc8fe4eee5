package command

import (
	"context"
	"errors"
	"testing"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository/repositorytest"
	"github.com/fintrack/finance-service/internal/utils"
)

func newUserService(store *repositorytest.Store) (*UserCommandService, *fakeCache, *fakePublisher) {
	cache := &fakeCache{}
	publisher := &fakePublisher{}
	svc := NewUserCommandService(store, cache, cache, cache, publisher)
	svc.now = frozenClock
	return svc, cache, publisher
}

func TestRegisterUser(t *testing.T) {
	store := repositorytest.NewStore()
	svc, _, _ := newUserService(store)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, cqrs.RegisterUserCommand{
		FirstName: "Alice", LastName: "Smith", Email: " Alice@Example.com ", Password: "securepass123",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if user.Email != "alice@example.com" || !user.Enabled {
		t.Errorf("unexpected user %+v", user)
	}
	if !utils.CheckPassword("securepass123", user.PasswordHash) {
		t.Errorf("password hash does not verify")
	}

	_, err = svc.RegisterUser(ctx, cqrs.RegisterUserCommand{FirstName: "A", Email: "alice@example.com", Password: "x"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	store := repositorytest.NewStore()
	store.PutUser(models.User{ID: alice, FirstName: "Alice", Email: "alice@example.com", Enabled: true})
	store.PutUser(models.User{ID: bob, FirstName: "Bob", Email: "bob@example.com", Enabled: true})
	svc, _, _ := newUserService(store)
	ctx := context.Background()

	tests := []struct {
		name        string
		cmd         cqrs.UpdateUserCommand
		expectedErr error
	}{
		{name: "other user is not found", cmd: cqrs.UpdateUserCommand{UserID: bob, RequestingUserID: alice, FirstName: "X", Email: "x@example.com"}, expectedErr: apperr.ErrNotFound},
		{name: "email taken", cmd: cqrs.UpdateUserCommand{UserID: alice, RequestingUserID: alice, FirstName: "Alice", Email: "bob@example.com"}, expectedErr: apperr.ErrConflict},
		{name: "success with new password", cmd: cqrs.UpdateUserCommand{UserID: alice, RequestingUserID: alice, FirstName: "Alicia", LastName: "S", Email: "alicia@example.com", Password: "newpass123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.UpdateUser(ctx, tt.cmd)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.FirstName != "Alicia" || user.Email != "alicia@example.com" {
				t.Errorf("unexpected user %+v", user)
			}
			if !utils.CheckPassword("newpass123", user.PasswordHash) {
				t.Errorf("password not updated")
			}
		})
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store := repositorytest.NewStore()
	store.PutUser(models.User{ID: alice, Email: "alice@example.com", Enabled: true})
	store.PutAccount(account("acc-a", alice, "0"))
	store.PutTransaction(models.Transaction{ID: "t1", AccountID: "acc-a", UserID: alice})
	svc, cache, _ := newUserService(store)
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, cqrs.DeleteUserCommand{UserID: alice, RequestingUserID: bob}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.DeleteUser(ctx, cqrs.DeleteUserCommand{UserID: alice, RequestingUserID: alice}); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok := store.User(alice); ok {
		t.Errorf("user still present")
	}
	if _, ok := store.Account("acc-a"); ok || store.TransactionCount() != 0 {
		t.Errorf("dependent rows not cascaded")
	}
	if len(cache.invalidated) != 3 {
		t.Errorf("expected user, account and transaction views dropped, got %v", cache.invalidated)
	}
}

func TestFindOrCreateOAuthUser(t *testing.T) {
	store := repositorytest.NewStore()
	store.PutUser(models.User{ID: bob, FirstName: "Bob", Email: "bob@example.com", Enabled: true})
	store.PutUser(models.User{ID: "disabled", FirstName: "D", Email: "d@example.com", Enabled: false})
	svc, _, publisher := newUserService(store)
	ctx := context.Background()

	created, err := svc.FindOrCreateOAuthUser(ctx, cqrs.OAuthLoginCommand{Provider: "google", Subject: "g-1", Email: "new@example.com", Name: "Ada King Lovelace"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.FirstName != "Ada" || created.LastName != "King Lovelace" || created.PasswordHash != "" {
		t.Errorf("unexpected user %+v", created)
	}
	if len(publisher.events) != 1 {
		t.Errorf("expected user.created, got %v", publisher.types())
	}

	again, err := svc.FindOrCreateOAuthUser(ctx, cqrs.OAuthLoginCommand{Provider: "google", Subject: "g-1", Email: "changed@example.com"})
	if err != nil || again.ID != created.ID {
		t.Fatalf("expected existing link to resolve to %s, got %+v (%v)", created.ID, again, err)
	}

	linked, err := svc.FindOrCreateOAuthUser(ctx, cqrs.OAuthLoginCommand{Provider: "github", Subject: "gh-7", Email: "BOB@example.com", Name: "bobby"})
	if err != nil || linked.ID != bob {
		t.Fatalf("expected link to existing user bob, got %+v (%v)", linked, err)
	}
	if store.LinkCount() != 2 {
		t.Errorf("expected 2 provider links, got %d", store.LinkCount())
	}

	tests := []struct {
		name        string
		cmd         cqrs.OAuthLoginCommand
		expectedErr error
	}{
		{name: "missing email", cmd: cqrs.OAuthLoginCommand{Provider: "github", Subject: "gh-8"}, expectedErr: apperr.ErrValidation},
		{name: "missing subject", cmd: cqrs.OAuthLoginCommand{Provider: "github", Email: "z@example.com"}, expectedErr: apperr.ErrValidation},
		{name: "disabled user", cmd: cqrs.OAuthLoginCommand{Provider: "google", Subject: "g-9", Email: "d@example.com"}, expectedErr: apperr.ErrUnauthorized},
		{name: "second identity of a linked provider", cmd: cqrs.OAuthLoginCommand{Provider: "github", Subject: "gh-99", Email: "bob@example.com"}, expectedErr: apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.FindOrCreateOAuthUser(ctx, tt.cmd); !errors.Is(err, tt.expectedErr) {
				t.Fatalf("expected %v, got %v", tt.expectedErr, err)
			}
		})
	}
	if store.LinkCount() != 2 {
		t.Errorf("failed logins must not add links, got %d", store.LinkCount())
	}

	// Bob has no google link yet, so a google identity with his email links.
	if u, err := svc.FindOrCreateOAuthUser(ctx, cqrs.OAuthLoginCommand{Provider: "google", Subject: "g-bob", Email: "bob@example.com"}); err != nil || u.ID != bob {
		t.Fatalf("expected google link for bob, got %+v (%v)", u, err)
	}
}
