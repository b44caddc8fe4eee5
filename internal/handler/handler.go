// Package handler maps HTTP requests onto commands and queries.
package handler

import (
	"net/http"

	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// pathID reads an identifier path parameter. Malformed identifiers can never
// match a row, so they are answered with not found straight away.
func pathID(c *gin.Context, param, resource string) (string, bool) {
	id := c.Param(param)
	if !utils.ValidID(id) {
		middleware.RespondWithError(c, http.StatusNotFound, resource+" "+id)
		return "", false
	}
	return id, true
}

// bindAndValidate decodes the JSON body into req and runs the validator.
// It writes the error response itself and reports whether to continue.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Authentication required")
	}
	return userID, ok
}
