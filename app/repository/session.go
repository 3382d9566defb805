package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go-auth-api/app/entity"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) WithTx(tx *sql.Tx) *SessionRepository {
	return NewSessionRepository(tx)
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, device_id, token_hash, ip_address, user_agent, revoked, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.TokenHash,
		session.IPAddress,
		session.UserAgent,
		session.Revoked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func (r *SessionRepository) FindActiveByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	query := `
		SELECT id, user_id, device_id, token_hash, ip_address, user_agent, revoked, expires_at, created_at
		FROM sessions WHERE token_hash = ? AND revoked = 0
	`
	session := &entity.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.TokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.Revoked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) FindActiveByUser(ctx context.Context, userID string, limit int) ([]*entity.Session, error) {
	query := `
		SELECT id, user_id, device_id, token_hash, ip_address, user_agent, revoked, expires_at, created_at
		FROM sessions WHERE user_id = ? AND revoked = 0 ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*entity.Session
	for rows.Next() {
		session := &entity.Session{}
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.DeviceID,
			&session.TokenHash,
			&session.IPAddress,
			&session.UserAgent,
			&session.Revoked,
			&session.ExpiresAt,
			&session.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// RevokeExpired marks all of a user's sessions whose expiry has passed.
func (r *SessionRepository) RevokeExpired(ctx context.Context, userID string, now time.Time) error {
	query := `UPDATE sessions SET revoked = 1 WHERE user_id = ? AND expires_at < ?`
	_, err := r.db.ExecContext(ctx, query, userID, now)
	return err
}

// DeleteByDevice removes every session the user holds on the given device so
// a fresh login replaces rather than duplicates it.
func (r *SessionRepository) DeleteByDevice(ctx context.Context, userID, deviceID string) error {
	query := `DELETE FROM sessions WHERE user_id = ? AND device_id = ?`
	_, err := r.db.ExecContext(ctx, query, userID, deviceID)
	return err
}

// FindActiveIDsBeyond returns ids of un-revoked sessions ranked after the
// `keep` most recently created ones.
func (r *SessionRepository) FindActiveIDsBeyond(ctx context.Context, userID string, keep int) ([]string, error) {
	query := `
		SELECT id FROM sessions WHERE user_id = ? AND revoked = 0 ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return nil, nil
	}
	return ids[keep:], nil
}

func (r *SessionRepository) RevokeByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `UPDATE sessions SET revoked = 1 WHERE id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Revoke marks a single session, scoped to its owner. Revoking a session that
// is already revoked, missing, or foreign affects zero rows.
func (r *SessionRepository) Revoke(ctx context.Context, userID, sessionID string) error {
	query := `UPDATE sessions SET revoked = 1 WHERE id = ? AND user_id = ? AND revoked = 0`
	_, err := r.db.ExecContext(ctx, query, sessionID, userID)
	return err
}

func (r *SessionRepository) RevokeByTokenHash(ctx context.Context, userID, tokenHash string) error {
	query := `UPDATE sessions SET revoked = 1 WHERE token_hash = ? AND user_id = ? AND revoked = 0`
	_, err := r.db.ExecContext(ctx, query, tokenHash, userID)
	return err
}

// DeleteExpired removes expired session rows outright. Used by the periodic
// cleanup sweep, not by request handling.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < ?`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
