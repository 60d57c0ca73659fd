package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotwellkz/app122/internal/platform/db"
	"github.com/hotwellkz/app122/internal/shared"
)

// Repository provides PostgreSQL backed account persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const findAccountSQL = `
SELECT id, email, display_name, password_hash, email_verified, created_at, updated_at
FROM accounts
WHERE id = $1`

// FindByID loads one account.
func (r *Repository) FindByID(ctx context.Context, id string) (*Account, error) {
	var (
		acct        Account
		displayName pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, findAccountSQL, id).Scan(
		&acct.ID, &acct.Email, &displayName, &acct.PasswordHash,
		&acct.EmailVerified, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("account: find %s: %w", id, err)
	}
	if displayName.Valid {
		acct.DisplayName = displayName.String
	}
	if createdAt.Valid {
		acct.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		acct.UpdatedAt = updatedAt.Time
	}
	return &acct, nil
}

// Delete removes the account and its sessions in one transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// UpdateDisplayName sets the display name.
func (r *Repository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET display_name = $2, updated_at = now() WHERE id = $1`, id, displayName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
