package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

type SessionRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	ListReady(ctx context.Context) ([]*model.Session, error)
	// AcquireChecker returns the least recently used ready checker and stamps
	// its last-used time. Returns nil when none is ready.
	AcquireChecker(ctx context.Context, now time.Time) (*model.Session, error)
	// AcquireReceiver picks the next receiver round-robin among ready
	// receivers under limit, reserves one slot on it and advances the cursor,
	// all in one transaction. Returns nil when none is eligible.
	AcquireReceiver(ctx context.Context, limit int) (*model.Session, error)
	// ReleaseReceiver gives back a reservation that will not be finalized.
	ReleaseReceiver(ctx context.Context, id int64) error
	MarkUsed(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, at time.Time) error
}

type SessionRepository struct {
	DB *sql.DB
}

const sessionColumns = `id, username, session_text, session_type, status, groups_received, groups_reserved, last_used_at, channel_id`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var (
		s        model.Session
		lastUsed sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Username, &s.SessionText, &s.Role, &s.Status,
		&s.CapacityUsed, &s.Reserved, &lastUsed, &s.ChannelRef); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		s.LastUsedAt = &lastUsed.Time
	}
	return &s, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id=$1`
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSessionNotFound(id)
		}
		return nil, err
	}
	return s, nil
}

// ListReady returns every ready session of any role, used to build the
// connection registry at startup.
func (r *SessionRepository) ListReady(ctx context.Context) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status='ready' ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) AcquireChecker(ctx context.Context, now time.Time) (*model.Session, error) {
	query := `
        UPDATE sessions SET last_used_at=$1
        WHERE id = (
            SELECT id FROM sessions
            WHERE session_type='checker' AND status='ready'
            ORDER BY last_used_at NULLS FIRST, id
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + sessionColumns
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) AcquireReceiver(ctx context.Context, limit int) (s *model.Session, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || s == nil {
			_ = tx.Rollback()
		}
	}()

	// The cursor row serializes concurrent assignments.
	var cursor sql.NullInt64
	if err = tx.QueryRowContext(ctx,
		`SELECT last_receiver_id FROM receiver_cursor WHERE id=1 FOR UPDATE`).Scan(&cursor); err != nil {
		return nil, fmt.Errorf("lock receiver cursor: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
        SELECT id FROM sessions
        WHERE session_type='receiver' AND status='ready'
          AND groups_received + groups_reserved < $1
        ORDER BY id
        FOR UPDATE
    `, limit)
	if err != nil {
		return nil, err
	}
	var eligible []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		eligible = append(eligible, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	var last *int64
	if cursor.Valid {
		last = &cursor.Int64
	}
	id, ok := PickReceiver(eligible, last)
	if !ok {
		return nil, nil
	}

	s, err = scanSession(tx.QueryRowContext(ctx, `
        UPDATE sessions SET groups_reserved = groups_reserved + 1
        WHERE id=$1
        RETURNING `+sessionColumns, id))
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE receiver_cursor SET last_receiver_id=$1, updated_at=NOW() WHERE id=1`, id); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) ReleaseReceiver(ctx context.Context, id int64) error {
	query := `UPDATE sessions SET groups_reserved = GREATEST(groups_reserved - 1, 0) WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *SessionRepository) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sessions SET last_used_at=$1 WHERE id=$2`, at, id)
	return err
}

// MarkFailed retires a session. Failed sessions never return to ready.
func (r *SessionRepository) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sessions SET status='failed', last_used_at=$1 WHERE id=$2`, at, id)
	return err
}

var _ SessionRepositoryInterface = (*SessionRepository)(nil)
