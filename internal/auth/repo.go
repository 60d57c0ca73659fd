package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotwellkz/app122/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	CreateSession(ctx context.Context, id, accountID string, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUserSQL = `
SELECT id, email, display_name, password_hash, email_verified, created_at, updated_at
FROM accounts `

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUserSQL+`WHERE email = $1`, email))
}

// FindByID fetches an account by ID.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUserSQL+`WHERE id = $1`, id))
}

// Create inserts a new account. A duplicate email maps to shared.ErrEmailTaken.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO accounts (id, email, display_name, password_hash, email_verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())`,
		user.ID, user.Email,
		pgtype.Text{String: user.DisplayName, Valid: user.DisplayName != ""},
		user.PasswordHash, user.EmailVerified)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("auth: create account: %w", err)
	}
	return nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id, accountID string, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
INSERT INTO sessions (id, account_id, created_at, expires_at, ip, ua)
VALUES ($1, $2, $3, $4, $5, $6)`,
		id, accountID,
		pgtype.Timestamptz{Time: now, Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""})
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *PGRepository) scanUser(row pgx.Row) (*User, error) {
	var (
		user        User
		displayName pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.Email, &displayName, &user.PasswordHash,
		&user.EmailVerified, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if displayName.Valid {
		user.DisplayName = displayName.String
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	}
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
