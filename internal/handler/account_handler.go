package handler

import (
	"context"
	"net/http"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	CreateAccount(context.Context, cqrs.CreateAccountCommand) (*models.Account, error)
	UpdateAccount(context.Context, cqrs.UpdateAccountCommand) (*models.Account, error)
	DeleteAccount(context.Context, cqrs.DeleteAccountCommand) error
	SetAccountActive(context.Context, cqrs.SetAccountActiveCommand) (*models.Account, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.AccountView, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type CreateAccountRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Type        string           `json:"type" validate:"required,oneof=CHECKING SAVINGS CREDIT_CARD INVESTMENT LOAN OTHER"`
	Currency    string           `json:"currency" validate:"required,len=3"`
	Balance     *decimal.Decimal `json:"balance" validate:"omitempty,cents"`
	Description string           `json:"description" validate:"max=255"`
}

// UpdateAccountRequest replaces the account's editable fields. Balance is
// required so a missing field is never read as a reset to zero.
type UpdateAccountRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Type        string           `json:"type" validate:"required,oneof=CHECKING SAVINGS CREDIT_CARD INVESTMENT LOAN OTHER"`
	Currency    string           `json:"currency" validate:"required,len=3"`
	Balance     *decimal.Decimal `json:"balance" validate:"required,cents"`
	Description string           `json:"description" validate:"max=255"`
}

type ListAccountsResponse struct {
	Accounts []models.AccountView `json:"accounts"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	cmd := cqrs.CreateAccountCommand{
		UserID:      userID,
		Name:        req.Name,
		Type:        models.AccountType(req.Type),
		Currency:    req.Currency,
		Description: req.Description,
	}
	if req.Balance != nil {
		cmd.Balance = *req.Balance
	}

	account, err := h.commands.CreateAccount(c.Request.Context(), cmd)
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account.View())
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	h.list(c, false)
}

func (h *AccountHandler) ListActiveAccounts(c *gin.Context) {
	h.list(c, true)
}

func (h *AccountHandler) list(c *gin.Context, activeOnly bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	views, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{
		UserID:     userID,
		ActiveOnly: activeOnly,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	if views == nil {
		views = []models.AccountView{}
	}

	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: views})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId", "account")
	if !ok {
		return
	}

	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{
		AccountID:        accountID,
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId", "account")
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.commands.UpdateAccount(c.Request.Context(), cqrs.UpdateAccountCommand{
		AccountID:        accountID,
		RequestingUserID: userID,
		Name:             req.Name,
		Type:             models.AccountType(req.Type),
		Currency:         req.Currency,
		Balance:          *req.Balance,
		Description:      req.Description,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, account.View())
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId", "account")
	if !ok {
		return
	}

	err := h.commands.DeleteAccount(c.Request.Context(), cqrs.DeleteAccountCommand{
		AccountID:        accountID,
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) ActivateAccount(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AccountHandler) DeactivateAccount(c *gin.Context) {
	h.setActive(c, false)
}

func (h *AccountHandler) setActive(c *gin.Context, active bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId", "account")
	if !ok {
		return
	}

	account, err := h.commands.SetAccountActive(c.Request.Context(), cqrs.SetAccountActiveCommand{
		AccountID:        accountID,
		RequestingUserID: userID,
		Active:           active,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, account.View())
}
