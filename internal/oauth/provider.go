// Package oauth implements the authorization-code login flow against external
// identity providers.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Profile is the identity a provider vouches for.
type Profile struct {
	Subject string
	Email   string
	Name    string
}

// Provider couples an OAuth2 client config with the way its user-info
// endpoint is read.
type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	// EmailsURL is queried when the profile carries no email (GitHub users
	// with a private address).
	EmailsURL string
	parse     func(body []byte) (Profile, error)
}

func callbackURL(baseURL, provider string) string {
	return baseURL + "/v1/auth/oauth/" + provider + "/callback"
}

func NewGoogleProvider(clientID, clientSecret, baseURL string) *Provider {
	return &Provider{
		Name: ProviderGoogle,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  callbackURL(baseURL, ProviderGoogle),
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		parse:       parseGoogleProfile,
	}
}

func NewGitHubProvider(clientID, clientSecret, baseURL string) *Provider {
	return &Provider{
		Name: ProviderGitHub,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.GitHub,
			RedirectURL:  callbackURL(baseURL, ProviderGitHub),
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
		parse:       parseGitHubProfile,
	}
}

func parseGoogleProfile(body []byte) (Profile, error) {
	var p struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("decode google profile: %w", err)
	}
	profile := Profile{Subject: p.Sub, Name: p.Name}
	if p.EmailVerified {
		profile.Email = p.Email
	}
	return profile, nil
}

func parseGitHubProfile(body []byte) (Profile, error) {
	var p struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("decode github profile: %w", err)
	}
	name := p.Name
	if name == "" {
		name = p.Login
	}
	profile := Profile{Name: name, Email: p.Email}
	if p.ID != 0 {
		profile.Subject = strconv.FormatInt(p.ID, 10)
	}
	return profile, nil
}

// fetchProfile reads the user-info endpoint with an authorised client.
func (p *Provider) fetchProfile(ctx context.Context, client *http.Client) (Profile, error) {
	body, err := getJSON(ctx, client, p.UserInfoURL)
	if err != nil {
		return Profile{}, err
	}
	profile, err := p.parse(body)
	if err != nil {
		return Profile{}, err
	}
	if profile.Email == "" && p.EmailsURL != "" {
		profile.Email, err = primaryEmail(ctx, client, p.EmailsURL)
		if err != nil {
			return Profile{}, err
		}
	}
	return profile, nil
}

func primaryEmail(ctx context.Context, client *http.Client, url string) (string, error) {
	body, err := getJSON(ctx, client, url)
	if err != nil {
		return "", err
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", fmt.Errorf("decode emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}
