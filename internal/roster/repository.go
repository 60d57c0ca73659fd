package roster

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lister loads the full ordered roster from the account store.
type Lister interface {
	ListAccounts(ctx context.Context) ([]UserRecord, error)
}

// Repository provides PostgreSQL backed roster reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listAccountsSQL = `
SELECT id, email, display_name, email_verified, created_at
FROM accounts
ORDER BY created_at DESC`

// ListAccounts returns every account, newest first. The ordering comes from
// the query; callers must preserve it.
func (r *Repository) ListAccounts(ctx context.Context) ([]UserRecord, error) {
	rows, err := r.pool.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, fmt.Errorf("roster: list accounts: %w", err)
	}
	defer rows.Close()

	var records []UserRecord
	for rows.Next() {
		var (
			id          string
			email       string
			displayName pgtype.Text
			verified    bool
			createdAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &email, &displayName, &verified, &createdAt); err != nil {
			return nil, fmt.Errorf("roster: scan account: %w", err)
		}
		records = append(records, recordFromRow(id, email, displayName, verified, createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: read accounts: %w", err)
	}
	return records, nil
}

// recordFromRow maps a store row onto a UserRecord, defaulting missing
// fields explicitly instead of relying on driver zero values.
func recordFromRow(id, email string, displayName pgtype.Text, verified bool, createdAt pgtype.Timestamptz) UserRecord {
	rec := UserRecord{
		ID:            id,
		Email:         email,
		EmailVerified: verified,
	}
	if displayName.Valid {
		rec.DisplayName = displayName.String
	}
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	return rec
}
