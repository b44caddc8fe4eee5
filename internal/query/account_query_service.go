package query

import (
	"context"
	"log/slog"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/models"
)

// AccountReader is the account read model.
type AccountReader interface {
	GetByID(ctx context.Context, id, userID string) (*models.AccountView, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.AccountView, error)
	Refresh(ctx context.Context, id, userID string) error
	InvalidateAccountView(ctx context.Context, ids ...string)
}

type AccountQueryService struct {
	readRepo AccountReader
}

func NewAccountQueryService(readRepo AccountReader) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

// GetAccount fetches a single account view owned by the requesting user.
func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	return s.readRepo.GetByID(ctx, q.AccountID, q.RequestingUserID)
}

func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.AccountView, error) {
	return s.readRepo.ListByUser(ctx, q.UserID, q.ActiveOnly)
}

// HandleAccountEvent is the Redis stream subscriber handler. It keeps cached
// account views warm after balance and profile changes and drops them once
// the account is gone.
func (s *AccountQueryService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	var data struct {
		AccountID string `json:"accountId"`
		UserID    string `json:"userId"`
	}
	switch event.Type {
	case events.BalanceUpdated, events.AccountUpdated, events.AccountActivated, events.AccountDeactivated:
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		if err := s.readRepo.Refresh(ctx, data.AccountID, data.UserID); err != nil {
			slog.Warn("account view refresh failed", "account_id", data.AccountID, "event", event.Type, "error", err)
			s.readRepo.InvalidateAccountView(ctx, data.AccountID)
		}
	case events.AccountDeleted:
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		s.readRepo.InvalidateAccountView(ctx, data.AccountID)
	}
	return nil
}
