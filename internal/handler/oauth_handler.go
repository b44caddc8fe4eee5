package handler

import (
	"context"
	"net/http"

	"github.com/fintrack/finance-service/internal/cqrs"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/oauth"
	"github.com/gin-gonic/gin"
)

// OAuthFlow is the provider side of the login.
type OAuthFlow interface {
	AuthCodeURL(ctx context.Context, provider string) (string, error)
	Exchange(ctx context.Context, provider, state, code string) (oauth.Profile, error)
	Providers() []string
}

// OAuthUsers resolves a verified external identity to a local user.
type OAuthUsers interface {
	FindOrCreateOAuthUser(context.Context, cqrs.OAuthLoginCommand) (*models.User, error)
}

type OAuthHandler struct {
	flow  OAuthFlow
	users OAuthUsers
}

func NewOAuthHandler(flow OAuthFlow, users OAuthUsers) *OAuthHandler {
	return &OAuthHandler{flow: flow, users: users}
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// ListProviders reports which providers can be used to sign in.
func (h *OAuthHandler) ListProviders(c *gin.Context) {
	providers := h.flow.Providers()
	if providers == nil {
		providers = []string{}
	}
	c.JSON(http.StatusOK, ProvidersResponse{Providers: providers})
}

// Begin redirects the browser to the provider's consent page.
func (h *OAuthHandler) Begin(c *gin.Context) {
	url, err := h.flow.AuthCodeURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback finishes the flow and answers with a token for the linked user.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	if reason := c.Query("error"); reason != "" {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Authorization denied: "+reason)
		return
	}

	profile, err := h.flow.Exchange(c.Request.Context(), provider, c.Query("state"), c.Query("code"))
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	user, err := h.users.FindOrCreateOAuthUser(c.Request.Context(), cqrs.OAuthLoginCommand{
		Provider: provider,
		Subject:  profile.Subject,
		Email:    profile.Email,
		Name:     profile.Name,
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

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: user.View()})
}
