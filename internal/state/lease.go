package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/containerd/errdefs"
)

// LeaseHeldError reports a lease owned by another live holder.
type LeaseHeldError struct {
	ID        string
	Owner     string
	PID       int
	ExpiresAt time.Time
}

func (e *LeaseHeldError) Error() string {
	return fmt.Sprintf("%s is locked by another elbctl process (pid %d) until %s",
		e.ID, e.PID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LeaseHeldError) Unwrap() error { return errdefs.ErrConflict }

// AcquireLease claims id for owner until ttl from now. A lease already held
// by owner is extended; an expired lease is taken over. The claim is a
// single upsert, so two processes racing on one database cannot both win.
func (s *Store) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (id, owner, pid, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			pid = excluded.pid,
			expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?
	`, id, owner, os.Getpid(), now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("acquiring lease %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquiring lease %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	held := &LeaseHeldError{ID: id}
	var expires int64
	err = s.db.QueryRowContext(ctx, `SELECT owner, pid, expires_at FROM leases WHERE id = ?`, id).
		Scan(&held.Owner, &held.PID, &expires)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading lease %s: %w", id, err)
	}
	held.ExpiresAt = time.UnixMilli(expires).UTC()
	return held
}

// ReleaseLease drops the lease on id if owner holds it.
func (s *Store) ReleaseLease(ctx context.Context, id, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE id = ? AND owner = ?`, id, owner); err != nil {
		return fmt.Errorf("releasing lease %s: %w", id, err)
	}
	return nil
}
