package command

import (
	"context"
	"sync"
	"time"

	"github.com/fintrack/finance-service/internal/models"
)

// fakeCache records read-model upkeep for all three view caches.
type fakeCache struct {
	cached      []string
	invalidated []string
}

func (c *fakeCache) CacheAccount(ctx context.Context, a *models.Account) {
	c.cached = append(c.cached, "account:"+a.ID)
}
func (c *fakeCache) InvalidateAccountView(ctx context.Context, ids ...string) {
	for _, id := range ids {
		c.invalidated = append(c.invalidated, "account:"+id)
	}
}
func (c *fakeCache) CacheTransaction(ctx context.Context, t *models.Transaction) {
	c.cached = append(c.cached, "transaction:"+t.ID)
}
func (c *fakeCache) InvalidateTransactionView(ctx context.Context, ids ...string) {
	for _, id := range ids {
		c.invalidated = append(c.invalidated, "transaction:"+id)
	}
}
func (c *fakeCache) CacheUser(ctx context.Context, u *models.User) {
	c.cached = append(c.cached, "user:"+u.ID)
}
func (c *fakeCache) InvalidateUserView(ctx context.Context, id string) {
	c.invalidated = append(c.invalidated, "user:"+id)
}

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{stream: stream, eventType: eventType, data: data})
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.eventType
	}
	return out
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func frozenClock() time.Time { return fixedNow }
