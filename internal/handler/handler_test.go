package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/gin-gonic/gin"
)

const (
	testUserID      = "7f1c2b9e-0d7a-4c53-9a51-3f4f7f0b2a10"
	otherUserID     = "c5b0d6a4-5e54-4d0e-8f55-0d7b6f2f9e21"
	testAccountID   = "0b6f7a52-92d4-4d3e-b1a6-5a8f8e2d7c01"
	testTransaction = "e3a1d4c2-6b8f-4f0e-9c7d-2a5b1e8f3d44"
)

func init() {
	middleware.MustInitJWTSecret("handler-test-secret", time.Hour)
}

func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("userId", userID)
		}
		c.Next()
	}
}

func newTestEngine(authUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(fakeAuth(authUserID))
	return r
}

func doRequest(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
