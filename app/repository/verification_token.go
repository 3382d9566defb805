package repository

import (
	"context"
	"database/sql"
	"time"

	"go-auth-api/app/entity"
)

type VerificationTokenRepository struct {
	db DBTX
}

func NewVerificationTokenRepository(db DBTX) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

func (r *VerificationTokenRepository) WithTx(tx *sql.Tx) *VerificationTokenRepository {
	return NewVerificationTokenRepository(tx)
}

func (r *VerificationTokenRepository) Create(ctx context.Context, token *entity.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (id, user_id, token_hash, token_type, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.TokenType,
		token.ExpiresAt,
		token.Used,
		token.CreatedAt,
	)
	return err
}

// InvalidateUnused marks every unused token of the given type for the user,
// so only the most recently issued token of a type can ever be consumed.
func (r *VerificationTokenRepository) InvalidateUnused(ctx context.Context, userID string, tokenType entity.VerificationType) error {
	query := `UPDATE verification_tokens SET used = 1 WHERE user_id = ? AND token_type = ? AND used = 0`
	_, err := r.db.ExecContext(ctx, query, userID, tokenType)
	return err
}

func (r *VerificationTokenRepository) FindValid(ctx context.Context, tokenHash string, tokenType entity.VerificationType, now time.Time) (*entity.VerificationToken, error) {
	query := `
		SELECT id, user_id, token_hash, token_type, expires_at, used, created_at
		FROM verification_tokens
		WHERE token_hash = ? AND token_type = ? AND used = 0 AND expires_at > ?
	`
	token := &entity.VerificationToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, tokenType, now).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.TokenType,
		&token.ExpiresAt,
		&token.Used,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (r *VerificationTokenRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE verification_tokens SET used = 1 WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *VerificationTokenRepository) DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at < ? OR used = 1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
