package query

import (
	"context"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/models"
)

type TransactionReader interface {
	GetByID(ctx context.Context, id, userID string) (*models.TransactionView, error)
	List(ctx context.Context, userID, accountID string) ([]models.TransactionView, error)
}

// TransactionQueryService serves transaction reads. Listing by account first
// checks the account belongs to the caller.
type TransactionQueryService struct {
	readRepo TransactionReader
	accounts AccountReader
}

func NewTransactionQueryService(readRepo TransactionReader, accounts AccountReader) *TransactionQueryService {
	return &TransactionQueryService{readRepo: readRepo, accounts: accounts}
}

func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	return s.readRepo.GetByID(ctx, q.TransactionID, q.UserID)
}

func (s *TransactionQueryService) ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.TransactionView, error) {
	if q.AccountID != "" {
		if _, err := s.accounts.GetByID(ctx, q.AccountID, q.UserID); err != nil {
			return nil, err
		}
	}
	return s.readRepo.List(ctx, q.UserID, q.AccountID)
}
