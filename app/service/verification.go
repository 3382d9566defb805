package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/entity"
	"go-auth-api/app/repository"
	"go-auth-api/config"
)

// VerificationService issues and consumes single-use out-of-band tokens for
// password resets and email verification. Only a keyed hash of a token is
// ever stored; the raw value exists once, on the way to the user's inbox.
type VerificationService struct {
	db        *sql.DB
	tokens    *repository.VerificationTokenRepository
	secret    string
	resetTTL  time.Duration
	verifyTTL time.Duration
}

func NewVerificationService(db *sql.DB, tokens *repository.VerificationTokenRepository, cfg *config.Config) *VerificationService {
	return &VerificationService{
		db:        db,
		tokens:    tokens,
		secret:    cfg.VerificationTokenSecret,
		resetTTL:  cfg.PasswordResetTTL,
		verifyTTL: cfg.EmailVerificationTTL,
	}
}

func (s *VerificationService) hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw + "-" + s.secret))
	return hex.EncodeToString(sum[:])
}

func (s *VerificationService) ttlFor(tokenType entity.VerificationType) time.Duration {
	if tokenType == entity.VerificationEmail {
		return s.verifyTTL
	}
	return s.resetTTL
}

// CreateToken invalidates any outstanding unused token of the same type and
// stores a new one, returning the raw token for out-of-band delivery.
func (s *VerificationService) CreateToken(ctx context.Context, userID string, tokenType entity.VerificationType) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	rawToken := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	record := &entity.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: s.hashToken(rawToken),
		TokenType: tokenType,
		ExpiresAt: now.Add(s.ttlFor(tokenType)),
		Used:      false,
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	txTokens := s.tokens.WithTx(tx)
	if err := txTokens.InvalidateUnused(ctx, userID, tokenType); err != nil {
		return "", err
	}
	if err := txTokens.Create(ctx, record); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"token_type": tokenType,
		"expires_at": record.ExpiresAt,
	}).Info("Verification token created")

	return rawToken, nil
}

// VerifyToken returns the stored record matching the raw token, or
// ErrInvalidToken. The failure is deliberately generic: it never reveals
// whether the token was unknown, expired, consumed, or of the wrong type.
func (s *VerificationService) VerifyToken(ctx context.Context, rawToken string, tokenType entity.VerificationType) (*entity.VerificationToken, error) {
	record, err := s.tokens.FindValid(ctx, s.hashToken(rawToken), tokenType, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if record == nil {
		logrus.WithField("token_type", tokenType).Warn("Invalid or expired verification token attempt")
		return nil, ErrInvalidToken
	}
	return record, nil
}

// ConsumeToken flips the record to used. Callers run it atomically with the
// effect it authorizes so the token stays single-use across retries.
func (s *VerificationService) ConsumeToken(ctx context.Context, record *entity.VerificationToken) error {
	return s.ConsumeTokenWith(ctx, s.tokens, record)
}

func (s *VerificationService) ConsumeTokenWith(ctx context.Context, tokens *repository.VerificationTokenRepository, record *entity.VerificationToken) error {
	if err := tokens.MarkUsed(ctx, record.ID); err != nil {
		return err
	}
	record.Used = true
	return nil
}

// CleanupExpired bulk-deletes used and expired tokens. Opportunistic
// maintenance; correctness never depends on it running.
func (s *VerificationService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.tokens.DeleteExpiredOrUsed(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	logrus.WithField("count", count).Info("Cleaned up expired verification tokens")
	return count, nil
}
