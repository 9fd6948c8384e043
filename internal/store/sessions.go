package store

import (
	"context"
	"fmt"
	"time"
)

// RevokeSession records a session id as logged out until it would have
// expired anyway.
func (s *Store) RevokeSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_sessions (id, expires_at, revoked_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, expiresAt.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether id was revoked.
func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revoked_sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}

// PruneRevoked drops revocations whose tokens have expired. It returns the
// number of rows removed.
func (s *Store) PruneRevoked(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at < ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("prune revoked sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Debug("pruned %d expired revocations", n)
	}
	return n, nil
}
