package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fintrack/finance-service/internal/apperr"
	"golang.org/x/oauth2"
)

type memoryStates struct {
	states map[string]string
}

func (m *memoryStates) Save(ctx context.Context, state, provider string) error {
	m.states[state] = provider
	return nil
}

func (m *memoryStates) Consume(ctx context.Context, state string) (string, error) {
	provider, ok := m.states[state]
	if !ok {
		return "", apperr.Unauthorized("unknown or expired oauth state")
	}
	delete(m.states, state)
	return provider, nil
}

// newFakeGitHub serves a token endpoint, a profile without email and an
// emails listing.
func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":4242,"login":"octo","name":"","email":null}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"email":"old@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T) (*Service, *memoryStates) {
	srv := newFakeGitHub(t)
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost:8080")
	p.Config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	p.UserInfoURL = srv.URL + "/user"
	p.EmailsURL = srv.URL + "/user/emails"

	states := &memoryStates{states: map[string]string{}}
	unconfigured := NewGoogleProvider("", "", "http://localhost:8080")
	return NewService(states, p, unconfigured), states
}

func TestAuthCodeURLStoresState(t *testing.T) {
	svc, states := newTestService(t)
	raw, err := svc.AuthCodeURL(context.Background(), ProviderGitHub)
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	state := u.Query().Get("state")
	if states.states[state] != ProviderGitHub {
		t.Fatalf("state %q not stored", state)
	}
	if got := u.Query().Get("redirect_uri"); got != "http://localhost:8080/v1/auth/oauth/github/callback" {
		t.Errorf("unexpected redirect_uri %q", got)
	}

	if _, err := svc.AuthCodeURL(context.Background(), ProviderGoogle); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected unconfigured provider to be not found, got %v", err)
	}
}

func TestExchange(t *testing.T) {
	svc, states := newTestService(t)
	ctx := context.Background()

	states.states["s-1"] = ProviderGitHub
	profile, err := svc.Exchange(ctx, ProviderGitHub, "s-1", "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Subject != "4242" || profile.Email != "octo@example.com" || profile.Name != "octo" {
		t.Errorf("unexpected profile %+v", profile)
	}
	if _, ok := states.states["s-1"]; ok {
		t.Errorf("state not consumed")
	}

	tests := []struct {
		name        string
		state       string
		code        string
		seed        map[string]string
		expectedErr error
	}{
		{name: "replayed state", state: "s-1", code: "good-code", expectedErr: apperr.ErrUnauthorized},
		{name: "state for another provider", state: "s-2", code: "good-code", seed: map[string]string{"s-2": ProviderGoogle}, expectedErr: apperr.ErrUnauthorized},
		{name: "bad code", state: "s-3", code: "bad-code", seed: map[string]string{"s-3": ProviderGitHub}, expectedErr: apperr.ErrUnauthorized},
		{name: "missing code", state: "s-4", code: "", expectedErr: apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.seed {
				states.states[k] = v
			}
			if _, err := svc.Exchange(ctx, ProviderGitHub, tt.state, tt.code); !errors.Is(err, tt.expectedErr) {
				t.Fatalf("expected %v, got %v", tt.expectedErr, err)
			}
		})
	}
}

func TestParseGoogleProfileIgnoresUnverifiedEmail(t *testing.T) {
	p, err := parseGoogleProfile([]byte(`{"sub":"g-1","email":"x@example.com","email_verified":false,"name":"X"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Subject != "g-1" || p.Email != "" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestProvidersListsOnlyConfigured(t *testing.T) {
	svc, _ := newTestService(t)
	if got := svc.Providers(); len(got) != 1 || got[0] != ProviderGitHub {
		t.Errorf("expected only github, got %v", got)
	}

	both := NewService(&memoryStates{states: map[string]string{}},
		NewGoogleProvider("g-id", "g-secret", "http://localhost:8080"),
		NewGitHubProvider("gh-id", "gh-secret", "http://localhost:8080"),
	)
	got := both.Providers()
	if len(got) != 2 || got[0] != ProviderGitHub || got[1] != ProviderGoogle {
		t.Errorf("expected sorted [github google], got %v", got)
	}
}
