package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fintrack/finance-service/internal/apperr"
	"github.com/fintrack/finance-service/internal/models"
)

const userColumns = `id, first_name, last_name, email, password_hash, enabled, created_at, updated_at`

// UserRepository is the Postgres implementation of UserStore.
type UserRepository struct {
	q querier
}

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var user models.User
	var passwordHash sql.NullString
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &passwordHash,
		&user.Enabled, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash.String
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Email, nullString(user.PasswordHash),
		user.Enabled, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return apperr.Conflict("email %s already registered", user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID fetches the full write model (including PasswordHash).
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, password_hash = $5, enabled = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.q.ExecContext(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Email, nullString(user.PasswordHash),
		user.Enabled, user.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return apperr.Conflict("email %s already registered", user.Email)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffected(result, "user", user.ID)
}

// Delete removes the user; accounts, transactions and provider links go with it.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return checkAffected(result, "user", id)
}

// OAuthProviderRepository is the Postgres implementation of OAuthProviderStore.
type OAuthProviderRepository struct {
	q querier
}

func (r *OAuthProviderRepository) FindBySubject(ctx context.Context, provider, subject string) (*models.OAuthProvider, error) {
	return r.find(ctx,
		`SELECT id, user_id, provider, provider_id, created_at FROM oauth_providers WHERE provider = $1 AND provider_id = $2`,
		provider, subject,
	)
}

func (r *OAuthProviderRepository) FindByUser(ctx context.Context, userID, provider string) (*models.OAuthProvider, error) {
	return r.find(ctx,
		`SELECT id, user_id, provider, provider_id, created_at FROM oauth_providers WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
}

func (r *OAuthProviderRepository) find(ctx context.Context, query, a, b string) (*models.OAuthProvider, error) {
	var link models.OAuthProvider
	err := r.q.QueryRowContext(ctx, query, a, b).Scan(
		&link.ID, &link.UserID, &link.Provider, &link.ProviderID, &link.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("oauth link", a+"/"+b)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth link: %w", err)
	}
	return &link, nil
}

func (r *OAuthProviderRepository) Create(ctx context.Context, link *models.OAuthProvider) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO oauth_providers (id, user_id, provider, provider_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		link.ID, link.UserID, link.Provider, link.ProviderID, link.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return apperr.Conflict("%s identity already linked", link.Provider)
		}
		return fmt.Errorf("failed to create oauth link: %w", err)
	}
	return nil
}
