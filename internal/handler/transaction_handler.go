package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TransactionCommander defines the write-side operations used by TransactionHandler.
type TransactionCommander interface {
	CreateTransaction(context.Context, cqrs.CreateTransactionCommand) (*models.Transaction, error)
	UpdateTransaction(context.Context, cqrs.UpdateTransactionCommand) (*models.Transaction, error)
	DeleteTransaction(context.Context, cqrs.DeleteTransactionCommand) error
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	GetTransaction(context.Context, cqrs.GetTransactionQuery) (*models.TransactionView, error)
	ListTransactions(context.Context, cqrs.ListTransactionsQuery) ([]models.TransactionView, error)
}

// TransactionHandler handles transaction-related HTTP requests.
type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
}

// TransactionRequest is the body of both create and update. Dates are RFC 3339.
type TransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount" validate:"required,money"`
	Type        string           `json:"type" validate:"required,oneof=INCOME EXPENSE TRANSFER"`
	Date        *time.Time       `json:"date" validate:"required"`
	Description string           `json:"description" validate:"max=255"`
	Category    string           `json:"category" validate:"max=100"`
	AccountID   string           `json:"accountId" validate:"required,uuid"`
}

func (r TransactionRequest) fields() cqrs.TransactionFields {
	return cqrs.TransactionFields{
		AccountID:   r.AccountID,
		Amount:      *r.Amount,
		Type:        models.TransactionType(r.Type),
		Date:        *r.Date,
		Description: r.Description,
		Category:    r.Category,
	}
}

type ListTransactionsResponse struct {
	Transactions []models.TransactionView `json:"transactions"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req TransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tx, err := h.commands.CreateTransaction(c.Request.Context(), cqrs.CreateTransactionCommand{
		UserID:            userID,
		TransactionFields: req.fields(),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx.View())
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.list(c, cqrs.ListTransactionsQuery{UserID: userID})
}

func (h *TransactionHandler) ListAccountTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId", "account")
	if !ok {
		return
	}
	h.list(c, cqrs.ListTransactionsQuery{UserID: userID, AccountID: accountID})
}

func (h *TransactionHandler) list(c *gin.Context, q cqrs.ListTransactionsQuery) {
	views, err := h.queries.ListTransactions(c.Request.Context(), q)
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	if views == nil {
		views = []models.TransactionView{}
	}

	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: views})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	transactionID, ok := pathID(c, "transactionId", "transaction")
	if !ok {
		return
	}

	view, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: transactionID,
		UserID:        userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	transactionID, ok := pathID(c, "transactionId", "transaction")
	if !ok {
		return
	}

	var req TransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tx, err := h.commands.UpdateTransaction(c.Request.Context(), cqrs.UpdateTransactionCommand{
		TransactionID:     transactionID,
		UserID:            userID,
		TransactionFields: req.fields(),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx.View())
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	transactionID, ok := pathID(c, "transactionId", "transaction")
	if !ok {
		return
	}

	err := h.commands.DeleteTransaction(c.Request.Context(), cqrs.DeleteTransactionCommand{
		TransactionID: transactionID,
		UserID:        userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
