package handler

import (
	"context"
	"net/http"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/gin-gonic/gin"
)

// Registrar creates password users.
type Registrar interface {
	RegisterUser(context.Context, cqrs.RegisterUserCommand) (*models.User, error)
}

// AuthQuerier defines the read-side operations used by AuthHandler.
type AuthQuerier interface {
	Login(context.Context, cqrs.LoginCommand) (string, error)
	RefreshToken(context.Context, cqrs.RefreshTokenCommand) (string, error)
}

// AuthHandler handles registration, login and token refresh.
type AuthHandler struct {
	users   Registrar
	queries AuthQuerier
}

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuthResponse struct {
	Token string           `json:"token"`
	User  *models.UserView `json:"user,omitempty"`
}

func NewAuthHandler(users Registrar, queries AuthQuerier) *AuthHandler {
	return &AuthHandler{users: users, queries: queries}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.RegisterUser(c.Request.Context(), cqrs.RegisterUserCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	token, err := middleware.IssueToken(user.ID, user.Email)
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: user.View()})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.queries.Login(c.Request.Context(), cqrs.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.queries.RefreshToken(c.Request.Context(), cqrs.RefreshTokenCommand{
		Token: req.Token,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}
