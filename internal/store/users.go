package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KnownUser is a Telegram user that has logged in before.
type KnownUser struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	LastLogin time.Time
}

// RememberUser upserts a user after a successful login.
func (s *Store) RememberUser(ctx context.Context, u KnownUser) error {
	var username any
	if u.Username != "" {
		username = u.Username
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_users (id, username, first_name, last_name, last_login) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_login = excluded.last_login`,
		u.ID, username, u.FirstName, u.LastName, s.now().UTC())
	if err != nil {
		return fmt.Errorf("remember user %d: %w", u.ID, err)
	}
	return nil
}

// FindUserByUsername looks a user up case-insensitively, ignoring a leading
// "@". It returns ErrNotFound when nobody matches.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (KnownUser, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	var (
		u     KnownUser
		uname sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, last_login
		FROM known_users WHERE lower(username) = lower(?)
		ORDER BY last_login DESC LIMIT 1`, username).
		Scan(&u.ID, &uname, &u.FirstName, &u.LastName, &u.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return KnownUser{}, ErrNotFound
	}
	if err != nil {
		return KnownUser{}, fmt.Errorf("find user %s: %w", username, err)
	}
	u.Username = uname.String
	return u, nil
}

// ListUsers returns known users, most recent login first.
func (s *Store) ListUsers(ctx context.Context) ([]KnownUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, first_name, last_name, last_login
		FROM known_users ORDER BY last_login DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []KnownUser
	for rows.Next() {
		var (
			u     KnownUser
			uname sql.NullString
		)
		if err := rows.Scan(&u.ID, &uname, &u.FirstName, &u.LastName, &u.LastLogin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Username = uname.String
		users = append(users, u)
	}
	return users, rows.Err()
}
