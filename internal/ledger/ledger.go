// Package ledger holds the balance-mutation rule applied by transaction
// create, update and delete. Everything here is pure: callers fetch the
// account, call Apply or Revert, and persist the result inside the same unit
// of work that writes the transaction row.
package ledger

import (
	"fmt"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/shopspring/decimal"
)

// Sign maps a transaction type to the direction of its effect on the owning
// account. TRANSFER is an outflow from its single associated account; there
// is no destination leg.
func Sign(t models.TransactionType) (int64, error) {
	switch t {
	case models.TransactionTypeIncome:
		return 1, nil
	case models.TransactionTypeExpense, models.TransactionTypeTransfer:
		return -1, nil
	default:
		return 0, apperr.Validation("unknown transaction type %q", t)
	}
}

// Effect returns the signed amount a transaction contributes to its account balance.
func Effect(t models.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, apperr.Validation("amount must be zero or positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, apperr.Validation("amount must have at most 2 decimal places")
	}
	sign, err := Sign(t)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(decimal.NewFromInt(sign)), nil
}

// Apply folds the transaction's effect into the account balance.
func Apply(account *models.Account, txn *models.Transaction) error {
	effect, err := Effect(txn.Type, txn.Amount)
	if err != nil {
		return err
	}
	account.Balance = account.Balance.Add(effect)
	return nil
}

// Revert removes a previously applied effect. Revert(Apply(b, t)) == b.
func Revert(account *models.Account, txn *models.Transaction) error {
	effect, err := Effect(txn.Type, txn.Amount)
	if err != nil {
		return err
	}
	account.Balance = account.Balance.Sub(effect)
	return nil
}

// ExpectedBalance recomputes a balance from the opening balance and per-type totals.
func ExpectedBalance(opening decimal.Decimal, sums []models.TypeSum) (decimal.Decimal, error) {
	expected := opening
	for _, s := range sums {
		effect, err := Effect(s.Type, s.Total)
		if err != nil {
			return decimal.Zero, fmt.Errorf("account %s: %w", s.AccountID, err)
		}
		expected = expected.Add(effect)
	}
	return expected, nil
}
