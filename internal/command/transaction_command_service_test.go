package command

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/ledger"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository/repositorytest"
	"github.com/shopspring/decimal"
)

const (
	alice = "11111111-1111-1111-1111-111111111111"
	bob   = "22222222-2222-2222-2222-222222222222"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type txnFixture struct {
	store     *repositorytest.Store
	cache     *fakeCache
	publisher *fakePublisher
	svc       *TransactionCommandService
}

func newTxnFixture(accounts ...models.Account) *txnFixture {
	store := repositorytest.NewStore()
	for _, a := range accounts {
		store.PutAccount(a)
	}
	cache := &fakeCache{}
	publisher := &fakePublisher{}
	svc := NewTransactionCommandService(store, cache, cache, publisher)
	svc.now = frozenClock
	return &txnFixture{store: store, cache: cache, publisher: publisher, svc: svc}
}

func account(id, owner, balance string) models.Account {
	return models.Account{
		ID: id, UserID: owner, Name: id, Type: models.AccountTypeChecking, Currency: "EUR",
		Balance: dec(balance), OpeningBalance: dec(balance), Active: true,
	}
}

func fields(accountID, amount string, t models.TransactionType) cqrs.TransactionFields {
	return cqrs.TransactionFields{
		AccountID: accountID,
		Amount:    dec(amount),
		Type:      t,
		Date:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *txnFixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, ok := f.store.Account(id)
	if !ok {
		t.Fatalf("account %s missing", id)
	}
	return a.Balance
}

// assertLedger checks balance == opening + sum of signed effects for every account.
func (f *txnFixture) assertLedger(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	accounts, _ := f.store.Accounts().ListAll(ctx)
	sums, _ := f.store.Transactions().SumsByAccount(ctx)
	for _, a := range accounts {
		var mine []models.TypeSum
		for _, s := range sums {
			if s.AccountID == a.ID {
				mine = append(mine, s)
			}
		}
		expected, err := ledger.ExpectedBalance(a.OpeningBalance, mine)
		if err != nil {
			t.Fatalf("ExpectedBalance: %v", err)
		}
		if !expected.Equal(a.Balance) {
			t.Errorf("account %s: balance %s, expected %s", a.ID, a.Balance, expected)
		}
	}
}

func TestCreateTransaction(t *testing.T) {
	tests := []struct {
		name            string
		userID          string
		fields          cqrs.TransactionFields
		expectedBalance string
		expectedErr     error
	}{
		{name: "income increases balance", userID: alice, fields: fields("acc-a", "250.75", models.TransactionTypeIncome), expectedBalance: "750.75"},
		{name: "expense decreases balance", userID: alice, fields: fields("acc-a", "100", models.TransactionTypeExpense), expectedBalance: "400"},
		{name: "transfer is an outflow", userID: alice, fields: fields("acc-a", "20", models.TransactionTypeTransfer), expectedBalance: "480"},
		{name: "zero amount is allowed", userID: alice, fields: fields("acc-a", "0", models.TransactionTypeExpense), expectedBalance: "500"},
		{name: "another user's account is not found", userID: bob, fields: fields("acc-a", "10", models.TransactionTypeIncome), expectedBalance: "500", expectedErr: apperr.ErrNotFound},
		{name: "unknown account is not found", userID: alice, fields: fields("missing", "10", models.TransactionTypeIncome), expectedBalance: "500", expectedErr: apperr.ErrNotFound},
		{name: "negative amount fails validation", userID: alice, fields: fields("acc-a", "-1", models.TransactionTypeExpense), expectedBalance: "500", expectedErr: apperr.ErrValidation},
		{name: "sub-cent amount fails validation", userID: alice, fields: fields("acc-a", "0.005", models.TransactionTypeExpense), expectedBalance: "500", expectedErr: apperr.ErrValidation},
		{name: "unknown type fails validation", userID: alice, fields: fields("acc-a", "1", "REFUND"), expectedBalance: "500", expectedErr: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTxnFixture(account("acc-a", alice, "500"))
			txn, err := f.svc.CreateTransaction(context.Background(), cqrs.CreateTransactionCommand{UserID: tt.userID, TransactionFields: tt.fields})

			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				if f.store.TransactionCount() != 0 {
					t.Errorf("expected no transaction rows after failure")
				}
				if len(f.publisher.events) != 0 {
					t.Errorf("expected no events after failure, got %v", f.publisher.types())
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if txn.ID == "" || txn.UserID != tt.userID || !txn.CreatedAt.Equal(fixedNow) {
					t.Errorf("unexpected transaction %+v", txn)
				}
				if got := f.publisher.types(); !slices.Equal(got, []string{events.BalanceUpdated, events.TransactionCreated}) {
					t.Errorf("unexpected events %v", got)
				}
			}
			if got := f.balance(t, "acc-a"); !got.Equal(dec(tt.expectedBalance)) {
				t.Errorf("expected balance %s, got %s", tt.expectedBalance, got)
			}
			f.assertLedger(t)
		})
	}
}

func TestSequentialCreatesAccumulate(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "0"))
	ctx := context.Background()
	for _, fl := range []cqrs.TransactionFields{
		fields("acc-a", "1000", models.TransactionTypeIncome),
		fields("acc-a", "0.10", models.TransactionTypeExpense),
	} {
		if _, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fl}); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("999.90")) {
		t.Fatalf("expected 999.90, got %s", got)
	}
	f.assertLedger(t)
}

func TestUpdateTransactionSameAccount(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "500"))
	ctx := context.Background()

	txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "100", models.TransactionTypeExpense)})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("400")) {
		t.Fatalf("expected 400 after create, got %s", got)
	}

	updated, err := f.svc.UpdateTransaction(ctx, cqrs.UpdateTransactionCommand{
		TransactionID: txn.ID, UserID: alice, TransactionFields: fields("acc-a", "150", models.TransactionTypeExpense),
	})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if !updated.Amount.Equal(dec("150")) {
		t.Errorf("expected amount 150, got %s", updated.Amount)
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("350")) {
		t.Fatalf("expected 350, got %s", got)
	}
	f.assertLedger(t)
}

func TestUpdateTransactionMovesAcrossAccounts(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "500"), account("acc-b", alice, "50"))
	ctx := context.Background()

	txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "200", models.TransactionTypeIncome)})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	_, err = f.svc.UpdateTransaction(ctx, cqrs.UpdateTransactionCommand{
		TransactionID: txn.ID, UserID: alice, TransactionFields: fields("acc-b", "30", models.TransactionTypeExpense),
	})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("500")) {
		t.Errorf("expected acc-a back at 500, got %s", got)
	}
	if got := f.balance(t, "acc-b"); !got.Equal(dec("20")) {
		t.Errorf("expected acc-b at 20, got %s", got)
	}
	stored, _ := f.store.Transaction(txn.ID)
	if stored.AccountID != "acc-b" || stored.Type != models.TransactionTypeExpense {
		t.Errorf("transaction not moved: %+v", stored)
	}
	f.assertLedger(t)
}

func TestUpdateTransactionOwnership(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "500"), account("acc-bob", bob, "10"))
	ctx := context.Background()
	txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "100", models.TransactionTypeExpense)})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	tests := []struct {
		name string
		cmd  cqrs.UpdateTransactionCommand
	}{
		{name: "other user cannot see the transaction", cmd: cqrs.UpdateTransactionCommand{TransactionID: txn.ID, UserID: bob, TransactionFields: fields("acc-bob", "1", models.TransactionTypeIncome)}},
		{name: "cannot move onto another user's account", cmd: cqrs.UpdateTransactionCommand{TransactionID: txn.ID, UserID: alice, TransactionFields: fields("acc-bob", "1", models.TransactionTypeIncome)}},
		{name: "unknown transaction", cmd: cqrs.UpdateTransactionCommand{TransactionID: "nope", UserID: alice, TransactionFields: fields("acc-a", "1", models.TransactionTypeIncome)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateTransaction(ctx, tt.cmd); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if got := f.balance(t, "acc-a"); !got.Equal(dec("400")) {
				t.Errorf("acc-a changed to %s", got)
			}
			if got := f.balance(t, "acc-bob"); !got.Equal(dec("10")) {
				t.Errorf("acc-bob changed to %s", got)
			}
		})
	}
}

func TestDeleteTransactionRevertsEffect(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "500"))
	ctx := context.Background()

	txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "200", models.TransactionTypeIncome)})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("700")) {
		t.Fatalf("expected 700, got %s", got)
	}

	if err := f.svc.DeleteTransaction(ctx, cqrs.DeleteTransactionCommand{TransactionID: txn.ID, UserID: bob}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, cqrs.DeleteTransactionCommand{TransactionID: txn.ID, UserID: alice}); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("500")) {
		t.Fatalf("expected 500, got %s", got)
	}
	if f.store.TransactionCount() != 0 {
		t.Errorf("transaction row not deleted")
	}
	if !slices.Contains(f.cache.invalidated, "transaction:"+txn.ID) {
		t.Errorf("transaction view not invalidated: %v", f.cache.invalidated)
	}
	f.assertLedger(t)
}

func TestFailureAfterInsertRollsBack(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "500"))
	f.store.Fail = func(op string) error {
		if op == "accounts.update_balance" {
			return errors.New("connection lost")
		}
		return nil
	}

	_, err := f.svc.CreateTransaction(context.Background(), cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "100", models.TransactionTypeExpense)})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.store.TransactionCount() != 0 {
		t.Errorf("transaction row survived the rollback")
	}
	if got := f.balance(t, "acc-a"); !got.Equal(dec("500")) {
		t.Errorf("expected 500 after rollback, got %s", got)
	}
	if f.store.Rollbacks != 1 || f.store.Commits != 0 {
		t.Errorf("expected one rollback, got commits=%d rollbacks=%d", f.store.Commits, f.store.Rollbacks)
	}
	if len(f.publisher.events) != 0 || len(f.cache.cached) != 0 {
		t.Errorf("side effects ran for a rolled back unit of work")
	}
}

func TestMixedSequenceKeepsLedgerInvariant(t *testing.T) {
	f := newTxnFixture(account("acc-a", alice, "100.00"), account("acc-b", alice, "-40.00"))
	ctx := context.Background()

	var ids []string
	for _, fl := range []cqrs.TransactionFields{
		fields("acc-a", "12.34", models.TransactionTypeIncome),
		fields("acc-a", "0.01", models.TransactionTypeExpense),
		fields("acc-b", "99.99", models.TransactionTypeTransfer),
		fields("acc-b", "40", models.TransactionTypeIncome),
	} {
		txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fl})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		ids = append(ids, txn.ID)
	}
	if _, err := f.svc.UpdateTransaction(ctx, cqrs.UpdateTransactionCommand{TransactionID: ids[0], UserID: alice, TransactionFields: fields("acc-b", "5", models.TransactionTypeIncome)}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, cqrs.DeleteTransactionCommand{TransactionID: ids[2], UserID: alice}); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	f.assertLedger(t)
	if got := f.balance(t, "acc-a"); !got.Equal(dec("99.99")) {
		t.Errorf("expected acc-a 99.99, got %s", got)
	}
	if got := f.balance(t, "acc-b"); !got.Equal(dec("5")) {
		t.Errorf("expected acc-b 5, got %s", got)
	}
}

// failOn fails the nth call (1-based) of op and lets everything else through.
func failOn(op string, nth int) func(string) error {
	calls := 0
	return func(got string) error {
		if got != op {
			return nil
		}
		calls++
		if calls == nth {
			return errors.New("connection lost")
		}
		return nil
	}
}

func TestUpdateAndDeleteFailuresRollBack(t *testing.T) {
	tests := []struct {
		name string
		fail func(string) error
		run  func(ctx context.Context, svc *TransactionCommandService, txnID string) error
	}{
		{
			name: "update moving accounts fails writing the row",
			fail: failOn("transactions.update", 1),
			run: func(ctx context.Context, svc *TransactionCommandService, txnID string) error {
				_, err := svc.UpdateTransaction(ctx, cqrs.UpdateTransactionCommand{TransactionID: txnID, UserID: alice, TransactionFields: fields("acc-b", "30", models.TransactionTypeExpense)})
				return err
			},
		},
		{
			name: "update moving accounts fails on the second balance",
			fail: failOn("accounts.update_balance", 2),
			run: func(ctx context.Context, svc *TransactionCommandService, txnID string) error {
				_, err := svc.UpdateTransaction(ctx, cqrs.UpdateTransactionCommand{TransactionID: txnID, UserID: alice, TransactionFields: fields("acc-b", "30", models.TransactionTypeExpense)})
				return err
			},
		},
		{
			name: "delete fails removing the row",
			fail: failOn("transactions.delete", 1),
			run: func(ctx context.Context, svc *TransactionCommandService, txnID string) error {
				return svc.DeleteTransaction(ctx, cqrs.DeleteTransactionCommand{TransactionID: txnID, UserID: alice})
			},
		},
		{
			name: "delete fails after the row is removed",
			fail: failOn("accounts.update_balance", 1),
			run: func(ctx context.Context, svc *TransactionCommandService, txnID string) error {
				return svc.DeleteTransaction(ctx, cqrs.DeleteTransactionCommand{TransactionID: txnID, UserID: alice})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTxnFixture(account("acc-a", alice, "500"), account("acc-b", alice, "50"))
			ctx := context.Background()
			txn, err := f.svc.CreateTransaction(ctx, cqrs.CreateTransactionCommand{UserID: alice, TransactionFields: fields("acc-a", "200", models.TransactionTypeIncome)})
			if err != nil {
				t.Fatalf("CreateTransaction: %v", err)
			}
			eventsBefore := len(f.publisher.events)
			f.store.Fail = tt.fail

			if err := tt.run(ctx, f.svc, txn.ID); err == nil {
				t.Fatal("expected error")
			}
			if got := f.balance(t, "acc-a"); !got.Equal(dec("700")) {
				t.Errorf("expected acc-a unchanged at 700, got %s", got)
			}
			if got := f.balance(t, "acc-b"); !got.Equal(dec("50")) {
				t.Errorf("expected acc-b unchanged at 50, got %s", got)
			}
			stored, ok := f.store.Transaction(txn.ID)
			if !ok {
				t.Fatal("transaction row lost in the rollback")
			}
			if stored.AccountID != "acc-a" || !stored.Amount.Equal(dec("200")) || stored.Type != models.TransactionTypeIncome {
				t.Errorf("transaction row changed: %+v", stored)
			}
			if f.store.Rollbacks != 1 {
				t.Errorf("expected one rollback, got %d", f.store.Rollbacks)
			}
			if len(f.publisher.events) != eventsBefore {
				t.Errorf("events published for a rolled back unit of work: %v", f.publisher.types()[eventsBefore:])
			}
			f.store.Fail = nil
			f.assertLedger(t)
		})
	}
}
