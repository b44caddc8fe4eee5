package cqrs

import (
	"time"

	"github.com/fintrack/finance-service/internal/models"
	"github.com/shopspring/decimal"
)

type RegisterUserCommand struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// UpdateUserCommand replaces the user's profile. An empty Password keeps the
// current credential.
type UpdateUserCommand struct {
	UserID           string
	RequestingUserID string
	FirstName        string
	LastName         string
	Email            string
	Password         string
}

type DeleteUserCommand struct {
	UserID           string
	RequestingUserID string
}

// OAuthLoginCommand carries an identity already verified by the provider.
type OAuthLoginCommand struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

type CreateAccountCommand struct {
	UserID      string
	Name        string
	Type        models.AccountType
	Currency    string
	Balance     decimal.Decimal
	Description string
}

type UpdateAccountCommand struct {
	AccountID        string
	RequestingUserID string
	Name             string
	Type             models.AccountType
	Currency         string
	Balance          decimal.Decimal
	Description      string
}

type DeleteAccountCommand struct {
	AccountID        string
	RequestingUserID string
}

type SetAccountActiveCommand struct {
	AccountID        string
	RequestingUserID string
	Active           bool
}

// TransactionFields is the mutable part of a transaction shared by create and update.
type TransactionFields struct {
	AccountID   string
	Amount      decimal.Decimal
	Type        models.TransactionType
	Date        time.Time
	Description string
	Category    string
}

type CreateTransactionCommand struct {
	UserID string
	TransactionFields
}

type UpdateTransactionCommand struct {
	TransactionID string
	UserID        string
	TransactionFields
}

type DeleteTransactionCommand struct {
	TransactionID string
	UserID        string
}

type LoginCommand struct {
	Email    string
	Password string
}

type RefreshTokenCommand struct {
	Token string
}
