package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/utils"
	goredis "github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// StateStore remembers issued state values until the callback consumes them.
type StateStore interface {
	Save(ctx context.Context, state, provider string) error
	// Consume returns the provider the state was issued for and forgets it.
	Consume(ctx context.Context, state string) (string, error)
}

// RedisStateStore keeps states in Redis with a TTL so abandoned logins expire.
type RedisStateStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisStateStore(client *goredis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func (s *RedisStateStore) Save(ctx context.Context, state, provider string) error {
	if err := s.client.Set(ctx, stateKeyPrefix+state, provider, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, goredis.Nil) {
		return "", apperr.Unauthorized("unknown or expired oauth state")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}
	return provider, nil
}

// Service drives the authorization-code flow for the configured providers.
type Service struct {
	providers map[string]*Provider
	states    StateStore
}

// NewService ignores providers without a client id so unconfigured providers
// answer not found.
func NewService(states StateStore, providers ...*Provider) *Service {
	s := &Service{providers: make(map[string]*Provider), states: states}
	for _, p := range providers {
		if p == nil || p.Config.ClientID == "" {
			continue
		}
		s.providers[p.Name] = p
	}
	return s
}

func (s *Service) provider(name string) (*Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperr.NotFound("oauth provider", name)
	}
	return p, nil
}

// AuthCodeURL issues a state and returns the provider's consent URL.
func (s *Service) AuthCodeURL(ctx context.Context, providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	state := utils.NewID()
	if err := s.states.Save(ctx, state, p.Name); err != nil {
		return "", err
	}
	return p.Config.AuthCodeURL(state), nil
}

// Exchange validates the state, trades the code for a token and reads the
// user's profile.
func (s *Service) Exchange(ctx context.Context, providerName, state, code string) (Profile, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return Profile{}, err
	}
	if state == "" || code == "" {
		return Profile{}, apperr.Validation("state and code are required")
	}
	issuedFor, err := s.states.Consume(ctx, state)
	if err != nil {
		return Profile{}, err
	}
	if issuedFor != p.Name {
		return Profile{}, apperr.Unauthorized("oauth state was issued for another provider")
	}

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", "provider", p.Name, "error", err)
		return Profile{}, apperr.Unauthorized("oauth code exchange failed")
	}
	profile, err := p.fetchProfile(ctx, p.Config.Client(ctx, token))
	if err != nil {
		return Profile{}, fmt.Errorf("fetch %s profile: %w", p.Name, err)
	}
	if profile.Subject == "" {
		return Profile{}, fmt.Errorf("%s profile has no subject", p.Name)
	}
	return profile, nil
}

// Providers lists the configured provider names in sorted order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
