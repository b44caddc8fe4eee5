package command

import (
	"context"
	"strings"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/fintrack/finance-service/internal/utils"
)

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	uow          repository.UnitOfWork
	accounts     AccountViewCache
	transactions TransactionViewCache
	publisher    events.Publisher
	now          func() time.Time
}

func NewAccountCommandService(
	uow repository.UnitOfWork,
	accounts AccountViewCache,
	transactions TransactionViewCache,
	publisher events.Publisher,
) *AccountCommandService {
	return &AccountCommandService{
		uow:          uow,
		accounts:     accounts,
		transactions: transactions,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount opens an account. The initial balance becomes the opening
// balance of the ledger.
func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	now := s.now()
	account := &models.Account{
		ID:             utils.NewID(),
		UserID:         cmd.UserID,
		Name:           strings.TrimSpace(cmd.Name),
		Type:           cmd.Type,
		Currency:       strings.ToUpper(cmd.Currency),
		Description:    cmd.Description,
		Balance:        cmd.Balance,
		OpeningBalance: cmd.Balance,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		exists, err := tx.Accounts().ExistsByName(ctx, account.UserID, account.Name)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("account name %q already exists", account.Name)
		}
		return tx.Accounts().Create(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.accounts.CacheAccount(ctx, account)
	events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, events.AccountCreated, accountEvent(account))
	return account, nil
}

// UpdateAccount replaces the mutable fields. A new balance is treated as a
// correction: the opening balance moves by the same amount so the recorded
// transactions still explain the difference.
func (s *AccountCommandService) UpdateAccount(ctx context.Context, cmd cqrs.UpdateAccountCommand) (*models.Account, error) {
	var (
		account *models.Account
		change  balanceChange
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetForOwnerForUpdate(ctx, cmd.AccountID, cmd.RequestingUserID)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(cmd.Name)
		if name != account.Name {
			exists, err := tx.Accounts().ExistsByName(ctx, account.UserID, name)
			if err != nil {
				return err
			}
			if exists {
				return apperr.Conflict("account name %q already exists", name)
			}
		}

		if !cmd.Balance.Equal(account.Balance) {
			change = balanceChange{account: account, before: account.Balance}
			transactionsTotal := account.Balance.Sub(account.OpeningBalance)
			account.OpeningBalance = cmd.Balance.Sub(transactionsTotal)
			account.Balance = cmd.Balance
		}
		account.Name = name
		account.Type = cmd.Type
		account.Currency = strings.ToUpper(cmd.Currency)
		account.Description = cmd.Description
		account.UpdatedAt = s.now()
		return tx.Accounts().Update(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.accounts.CacheAccount(ctx, account)
	events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, events.AccountUpdated, accountEvent(account))
	if change.account != nil {
		events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
			AccountID:  account.ID,
			UserID:     account.UserID,
			NewBalance: account.Balance,
			Change:     account.Balance.Sub(change.before),
		})
	}
	return account, nil
}

// DeleteAccount removes the account together with its transactions.
func (s *AccountCommandService) DeleteAccount(ctx context.Context, cmd cqrs.DeleteAccountCommand) error {
	var (
		account *models.Account
		txnIDs  []string
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetForOwnerForUpdate(ctx, cmd.AccountID, cmd.RequestingUserID)
		if err != nil {
			return err
		}
		txns, err := tx.Transactions().ListByAccount(ctx, account.ID, account.UserID)
		if err != nil {
			return err
		}
		txnIDs = transactionIDs(txns)
		return tx.Accounts().Delete(ctx, account.ID, account.UserID)
	})
	if err != nil {
		return err
	}

	s.accounts.InvalidateAccountView(ctx, account.ID)
	s.transactions.InvalidateTransactionView(ctx, txnIDs...)
	events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, events.AccountDeleted, accountEvent(account))
	return nil
}

// SetAccountActive activates or deactivates an account. Setting the flag to
// its current value is a no-op that still returns the account.
func (s *AccountCommandService) SetAccountActive(ctx context.Context, cmd cqrs.SetAccountActiveCommand) (*models.Account, error) {
	var (
		account *models.Account
		changed bool
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetForOwnerForUpdate(ctx, cmd.AccountID, cmd.RequestingUserID)
		if err != nil {
			return err
		}
		if account.Active == cmd.Active {
			return nil
		}
		changed = true
		account.Active = cmd.Active
		account.UpdatedAt = s.now()
		return tx.Accounts().SetActive(ctx, account.ID, account.UserID, cmd.Active)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return account, nil
	}

	eventType := events.AccountDeactivated
	if account.Active {
		eventType = events.AccountActivated
	}
	s.accounts.CacheAccount(ctx, account)
	events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, eventType, accountEvent(account))
	return account, nil
}

func accountEvent(a *models.Account) events.AccountEvent {
	return events.AccountEvent{
		AccountID: a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Type:      string(a.Type),
	}
}
