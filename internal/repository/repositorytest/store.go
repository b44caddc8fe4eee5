// Package repositorytest provides an in-memory repository.UnitOfWork for tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/shopspring/decimal"
)

type state struct {
	users    map[string]models.User
	links    map[string]models.OAuthProvider
	accounts map[string]models.Account
	txns     map[string]models.Transaction
}

func (s state) clone() state {
	c := state{
		users:    make(map[string]models.User, len(s.users)),
		links:    make(map[string]models.OAuthProvider, len(s.links)),
		accounts: make(map[string]models.Account, len(s.accounts)),
		txns:     make(map[string]models.Transaction, len(s.txns)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	return c
}

// Store keeps every table in maps. WithinTx snapshots the maps and restores
// them when fn fails, so rollback behaves like Postgres. Units of work are
// serialised; reads outside WithinTx are not synchronised.
type Store struct {
	mu sync.Mutex
	st state

	// Fail is consulted before every write with an operation name such as
	// "transactions.create" or "accounts.update_balance". A non-nil result
	// aborts that write.
	Fail func(op string) error

	Commits   int
	Rollbacks int
	Snapshots int
}

var (
	_ repository.UnitOfWork     = (*Store)(nil)
	_ repository.SnapshotReader = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{st: state{}.clone()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			s.Rollbacks++
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		s.st = snapshot
		s.Rollbacks++
		return err
	}
	s.Commits++
	return nil
}

// ReadSnapshot holds the store lock for the whole of fn, so no unit of work
// can commit between its reads.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots++
	return fn(s)
}

func (s *Store) Users() repository.UserStore                   { return users{s} }
func (s *Store) OAuthProviders() repository.OAuthProviderStore { return links{s} }
func (s *Store) Accounts() repository.AccountStore             { return accounts{s} }
func (s *Store) Transactions() repository.TransactionStore     { return transactions{s} }

// Seed helpers write directly, bypassing Fail.

func (s *Store) PutUser(u models.User)               { s.st.users[u.ID] = u }
func (s *Store) PutAccount(a models.Account)         { s.st.accounts[a.ID] = a }
func (s *Store) PutTransaction(t models.Transaction) { s.st.txns[t.ID] = t }

func (s *Store) Account(id string) (models.Account, bool) {
	a, ok := s.st.accounts[id]
	return a, ok
}

func (s *Store) Transaction(id string) (models.Transaction, bool) {
	t, ok := s.st.txns[id]
	return t, ok
}

func (s *Store) User(id string) (models.User, bool) {
	u, ok := s.st.users[id]
	return u, ok
}

func (s *Store) TransactionCount() int { return len(s.st.txns) }
func (s *Store) LinkCount() int        { return len(s.st.links) }

func (s *Store) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

type users struct{ s *Store }

func (r users) Create(ctx context.Context, u *models.User) error {
	if err := r.s.fail("users.create"); err != nil {
		return err
	}
	for _, existing := range r.s.st.users {
		if existing.Email == u.Email {
			return apperr.Conflict("email %s already registered", u.Email)
		}
	}
	r.s.st.users[u.ID] = *u
	return nil
}

func (r users) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return &u, nil
}

func (r users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.s.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user", email)
}

func (r users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r users) Update(ctx context.Context, u *models.User) error {
	if err := r.s.fail("users.update"); err != nil {
		return err
	}
	if _, ok := r.s.st.users[u.ID]; !ok {
		return apperr.NotFound("user", u.ID)
	}
	for id, existing := range r.s.st.users {
		if id != u.ID && existing.Email == u.Email {
			return apperr.Conflict("email %s already registered", u.Email)
		}
	}
	r.s.st.users[u.ID] = *u
	return nil
}

func (r users) Delete(ctx context.Context, id string) error {
	if err := r.s.fail("users.delete"); err != nil {
		return err
	}
	if _, ok := r.s.st.users[id]; !ok {
		return apperr.NotFound("user", id)
	}
	delete(r.s.st.users, id)
	for k, l := range r.s.st.links {
		if l.UserID == id {
			delete(r.s.st.links, k)
		}
	}
	for k, a := range r.s.st.accounts {
		if a.UserID == id {
			delete(r.s.st.accounts, k)
		}
	}
	for k, t := range r.s.st.txns {
		if t.UserID == id {
			delete(r.s.st.txns, k)
		}
	}
	return nil
}

type links struct{ s *Store }

func (r links) FindBySubject(ctx context.Context, provider, subject string) (*models.OAuthProvider, error) {
	for _, l := range r.s.st.links {
		if l.Provider == provider && l.ProviderID == subject {
			return &l, nil
		}
	}
	return nil, apperr.NotFound("oauth link", provider+"/"+subject)
}

func (r links) FindByUser(ctx context.Context, userID, provider string) (*models.OAuthProvider, error) {
	for _, l := range r.s.st.links {
		if l.UserID == userID && l.Provider == provider {
			return &l, nil
		}
	}
	return nil, apperr.NotFound("oauth link", userID+"/"+provider)
}

func (r links) Create(ctx context.Context, l *models.OAuthProvider) error {
	if err := r.s.fail("oauth_providers.create"); err != nil {
		return err
	}
	if _, err := r.FindBySubject(ctx, l.Provider, l.ProviderID); err == nil {
		return apperr.Conflict("%s identity already linked", l.Provider)
	}
	r.s.st.links[l.ID] = *l
	return nil
}

type accounts struct{ s *Store }

func (r accounts) Create(ctx context.Context, a *models.Account) error {
	if err := r.s.fail("accounts.create"); err != nil {
		return err
	}
	if exists, _ := r.ExistsByName(ctx, a.UserID, a.Name); exists {
		return apperr.Conflict("account name %q already exists", a.Name)
	}
	r.s.st.accounts[a.ID] = *a
	return nil
}

func (r accounts) GetForOwner(ctx context.Context, id, userID string) (*models.Account, error) {
	a, ok := r.s.st.accounts[id]
	if !ok || a.UserID != userID {
		return nil, apperr.NotFound("account", id)
	}
	return &a, nil
}

func (r accounts) GetForOwnerForUpdate(ctx context.Context, id, userID string) (*models.Account, error) {
	return r.GetForOwner(ctx, id, userID)
}

func (r accounts) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.Account, error) {
	out := []models.Account{}
	for _, a := range r.s.st.accounts {
		if a.UserID == userID && (!activeOnly || a.Active) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r accounts) ListAll(ctx context.Context) ([]models.Account, error) {
	out := []models.Account{}
	for _, a := range r.s.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r accounts) ExistsByName(ctx context.Context, userID, name string) (bool, error) {
	for _, a := range r.s.st.accounts {
		if a.UserID == userID && a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r accounts) Update(ctx context.Context, a *models.Account) error {
	if err := r.s.fail("accounts.update"); err != nil {
		return err
	}
	if _, err := r.GetForOwner(ctx, a.ID, a.UserID); err != nil {
		return err
	}
	for id, existing := range r.s.st.accounts {
		if id != a.ID && existing.UserID == a.UserID && existing.Name == a.Name {
			return apperr.Conflict("account name %q already exists", a.Name)
		}
	}
	r.s.st.accounts[a.ID] = *a
	return nil
}

func (r accounts) SetActive(ctx context.Context, id, userID string, active bool) error {
	if err := r.s.fail("accounts.set_active"); err != nil {
		return err
	}
	a, err := r.GetForOwner(ctx, id, userID)
	if err != nil {
		return err
	}
	a.Active = active
	r.s.st.accounts[id] = *a
	return nil
}

func (r accounts) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	if err := r.s.fail("accounts.update_balance"); err != nil {
		return err
	}
	a, ok := r.s.st.accounts[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.Balance = balance
	r.s.st.accounts[id] = a
	return nil
}

func (r accounts) Delete(ctx context.Context, id, userID string) error {
	if err := r.s.fail("accounts.delete"); err != nil {
		return err
	}
	if _, err := r.GetForOwner(ctx, id, userID); err != nil {
		return err
	}
	delete(r.s.st.accounts, id)
	for k, t := range r.s.st.txns {
		if t.AccountID == id {
			delete(r.s.st.txns, k)
		}
	}
	return nil
}

type transactions struct{ s *Store }

func (r transactions) Create(ctx context.Context, t *models.Transaction) error {
	if err := r.s.fail("transactions.create"); err != nil {
		return err
	}
	r.s.st.txns[t.ID] = *t
	return nil
}

func (r transactions) GetForOwner(ctx context.Context, id, userID string) (*models.Transaction, error) {
	t, ok := r.s.st.txns[id]
	if !ok || t.UserID != userID {
		return nil, apperr.NotFound("transaction", id)
	}
	return &t, nil
}

func (r transactions) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return r.filter(func(t models.Transaction) bool { return t.UserID == userID }), nil
}

func (r transactions) ListByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error) {
	return r.filter(func(t models.Transaction) bool { return t.AccountID == accountID && t.UserID == userID }), nil
}

func (r transactions) filter(keep func(models.Transaction) bool) []models.Transaction {
	out := []models.Transaction{}
	for _, t := range r.s.st.txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (r transactions) Update(ctx context.Context, t *models.Transaction) error {
	if err := r.s.fail("transactions.update"); err != nil {
		return err
	}
	if _, ok := r.s.st.txns[t.ID]; !ok {
		return apperr.NotFound("transaction", t.ID)
	}
	r.s.st.txns[t.ID] = *t
	return nil
}

func (r transactions) Delete(ctx context.Context, id string) error {
	if err := r.s.fail("transactions.delete"); err != nil {
		return err
	}
	if _, ok := r.s.st.txns[id]; !ok {
		return apperr.NotFound("transaction", id)
	}
	delete(r.s.st.txns, id)
	return nil
}

func (r transactions) SumsByAccount(ctx context.Context) ([]models.TypeSum, error) {
	type key struct {
		account string
		typ     models.TransactionType
	}
	totals := map[key]decimal.Decimal{}
	for _, t := range r.s.st.txns {
		k := key{t.AccountID, t.Type}
		totals[k] = totals[k].Add(t.Amount)
	}
	sums := make([]models.TypeSum, 0, len(totals))
	for k, total := range totals {
		sums = append(sums, models.TypeSum{AccountID: k.account, Type: k.typ, Total: total})
	}
	return sums, nil
}
