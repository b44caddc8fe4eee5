package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/ledger"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/fintrack/finance-service/internal/utils"
	"github.com/shopspring/decimal"
)

// TransactionCommandService records transactions and keeps every touched
// account balance equal to its opening balance plus the signed effects of its
// transactions. Each operation is a single unit of work with the account rows
// locked for update.
type TransactionCommandService struct {
	uow          repository.UnitOfWork
	transactions TransactionViewCache
	accounts     AccountViewCache
	publisher    events.Publisher
	now          func() time.Time
}

func NewTransactionCommandService(
	uow repository.UnitOfWork,
	transactions TransactionViewCache,
	accounts AccountViewCache,
	publisher events.Publisher,
) *TransactionCommandService {
	return &TransactionCommandService{
		uow:          uow,
		transactions: transactions,
		accounts:     accounts,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// balanceChange is one account's net movement within a committed unit of work.
type balanceChange struct {
	account *models.Account
	before  decimal.Decimal
}

func (s *TransactionCommandService) CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error) {
	if _, err := ledger.Effect(cmd.Type, cmd.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	txn := &models.Transaction{
		ID:     utils.NewID(),
		UserID: cmd.UserID,
	}
	applyFields(txn, cmd.TransactionFields)
	txn.CreatedAt = now
	txn.UpdatedAt = now

	var change balanceChange
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		account, err := tx.Accounts().GetForOwnerForUpdate(ctx, cmd.AccountID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		change = balanceChange{account: account, before: account.Balance}
		if err := ledger.Apply(account, txn); err != nil {
			return err
		}
		return tx.Accounts().UpdateBalance(ctx, account.ID, account.Balance)
	})
	if err != nil {
		return nil, err
	}

	s.transactions.CacheTransaction(ctx, txn)
	s.afterBalanceChange(ctx, change)
	events.PublishOrLog(ctx, s.publisher, events.TransactionEventsStream, events.TransactionCreated, transactionEvent(txn))
	slog.Info("transaction created", "transaction_id", txn.ID, "account_id", txn.AccountID, "type", txn.Type)
	return txn, nil
}

// UpdateTransaction reverts the stored effect from the account the
// transaction currently belongs to, then applies the new effect to the
// requested account, which may be the same one.
func (s *TransactionCommandService) UpdateTransaction(ctx context.Context, cmd cqrs.UpdateTransactionCommand) (*models.Transaction, error) {
	if _, err := ledger.Effect(cmd.Type, cmd.Amount); err != nil {
		return nil, err
	}

	var (
		txn     *models.Transaction
		changes []balanceChange
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().GetForOwner(ctx, cmd.TransactionID, cmd.UserID)
		if err != nil {
			return err
		}

		current, target, err := lockAccountPair(ctx, tx.Accounts(), txn.AccountID, cmd.AccountID, cmd.UserID)
		if err != nil {
			return err
		}
		changes = []balanceChange{{account: current, before: current.Balance}}
		if target != current {
			changes = append(changes, balanceChange{account: target, before: target.Balance})
		}

		if err := ledger.Revert(current, txn); err != nil {
			return err
		}
		applyFields(txn, cmd.TransactionFields)
		txn.UpdatedAt = s.now()
		if err := ledger.Apply(target, txn); err != nil {
			return err
		}

		if err := tx.Transactions().Update(ctx, txn); err != nil {
			return err
		}
		for _, c := range changes {
			if err := tx.Accounts().UpdateBalance(ctx, c.account.ID, c.account.Balance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transactions.CacheTransaction(ctx, txn)
	for _, c := range changes {
		s.afterBalanceChange(ctx, c)
	}
	events.PublishOrLog(ctx, s.publisher, events.TransactionEventsStream, events.TransactionUpdated, transactionEvent(txn))
	return txn, nil
}

func (s *TransactionCommandService) DeleteTransaction(ctx context.Context, cmd cqrs.DeleteTransactionCommand) error {
	var (
		txn    *models.Transaction
		change balanceChange
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().GetForOwner(ctx, cmd.TransactionID, cmd.UserID)
		if err != nil {
			return err
		}
		account, err := tx.Accounts().GetForOwnerForUpdate(ctx, txn.AccountID, cmd.UserID)
		if err != nil {
			return err
		}
		change = balanceChange{account: account, before: account.Balance}
		if err := ledger.Revert(account, txn); err != nil {
			return err
		}
		if err := tx.Transactions().Delete(ctx, txn.ID); err != nil {
			return err
		}
		return tx.Accounts().UpdateBalance(ctx, account.ID, account.Balance)
	})
	if err != nil {
		return err
	}

	s.transactions.InvalidateTransactionView(ctx, txn.ID)
	s.afterBalanceChange(ctx, change)
	events.PublishOrLog(ctx, s.publisher, events.TransactionEventsStream, events.TransactionDeleted, transactionEvent(txn))
	return nil
}

// lockAccountPair locks the current and target accounts in id order so two
// updates moving transactions in opposite directions cannot deadlock. When
// both ids match the same *models.Account is returned twice.
func lockAccountPair(ctx context.Context, accounts repository.AccountStore, currentID, targetID, userID string) (current, target *models.Account, err error) {
	if currentID == targetID {
		current, err = accounts.GetForOwnerForUpdate(ctx, currentID, userID)
		return current, current, err
	}

	first, second := currentID, targetID
	if second < first {
		first, second = second, first
	}
	a, err := accounts.GetForOwnerForUpdate(ctx, first, userID)
	if err != nil {
		return nil, nil, err
	}
	b, err := accounts.GetForOwnerForUpdate(ctx, second, userID)
	if err != nil {
		return nil, nil, err
	}
	if a.ID == currentID {
		return a, b, nil
	}
	return b, a, nil
}

func (s *TransactionCommandService) afterBalanceChange(ctx context.Context, c balanceChange) {
	if c.account == nil {
		return
	}
	s.accounts.InvalidateAccountView(ctx, c.account.ID)
	events.PublishOrLog(ctx, s.publisher, events.AccountEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountID:  c.account.ID,
		UserID:     c.account.UserID,
		NewBalance: c.account.Balance,
		Change:     c.account.Balance.Sub(c.before),
	})
}

func applyFields(txn *models.Transaction, f cqrs.TransactionFields) {
	txn.AccountID = f.AccountID
	txn.Amount = f.Amount
	txn.Type = f.Type
	txn.Date = f.Date
	txn.Description = f.Description
	txn.Category = f.Category
}

func transactionEvent(txn *models.Transaction) events.TransactionEvent {
	return events.TransactionEvent{
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		UserID:        txn.UserID,
		Amount:        txn.Amount,
		Type:          string(txn.Type),
	}
}
