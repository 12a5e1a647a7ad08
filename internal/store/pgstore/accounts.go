package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-invoice/internal/auth"
)

const accountColumns = "id, username, name, email, role, password_hash, created_at, updated_at"

func scanAccount(row pgx.Row) (auth.Account, error) {
	var a auth.Account
	err := row.Scan(&a.ID, &a.Username, &a.Name, &a.Email, &a.Role, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Account{}, auth.ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, username_lower, name, email, role, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Username, strings.ToLower(strings.TrimSpace(a.Username)), a.Name, a.Email, a.Role, a.PasswordHash, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, constraintUsername) {
			return auth.Account{}, auth.ErrUsernameTaken
		}
		return auth.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (auth.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username_lower = $1",
		strings.ToLower(strings.TrimSpace(username)),
	))
}

func (s *Store) AccountByID(ctx context.Context, id string) (auth.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

func (s *Store) CountAccountsByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM accounts WHERE role = $1", role).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, "UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1", id, hash, at)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

var _ auth.AccountStore = (*Store)(nil)
