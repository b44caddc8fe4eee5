package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"

	AccountCreated     = "account.created"
	AccountUpdated     = "account.updated"
	AccountDeleted     = "account.deleted"
	AccountActivated   = "account.activated"
	AccountDeactivated = "account.deactivated"
	BalanceUpdated     = "balance.updated"

	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"
)

// Stream names
const (
	UserEventsStream        = "user.events"
	AccountEventsStream     = "account.events"
	TransactionEventsStream = "transaction.events"
)

// Publisher delivers domain events to whichever broker is configured.
// Publish is only called after the originating unit of work committed.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// User events
type UserEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Account events
type AccountEvent struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
}

// BalanceUpdatedEvent reports the net change applied to one account by a
// single committed ledger operation.
type BalanceUpdatedEvent struct {
	AccountID  string          `json:"accountId"`
	UserID     string          `json:"userId"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Change     decimal.Decimal `json:"change"`
}

// Transaction events
type TransactionEvent struct {
	TransactionID string          `json:"transactionId"`
	AccountID     string          `json:"accountId"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
}
