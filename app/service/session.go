package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/entity"
	"go-auth-api/app/repository"
	"go-auth-api/config"
)

const (
	maxHeaderLength    = 500
	activeSessionLimit = 10
)

// ipHeaders is the trusted-proxy precedence for resolving the client address.
// X-Forwarded-For may carry a chain; only its first hop counts.
var ipHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

var unsafeHeaderChars = regexp.MustCompile(`[^\w\s\-.,/()\[\]]`)

// RequestMeta is the sanitized slice of an inbound request the session layer
// needs for fingerprinting. Extracted up front so services never touch
// transport types.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}

// NewRequestMeta resolves the client IP through the header precedence list,
// falling back to the connection's remote address.
func NewRequestMeta(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress:      clientIP(r),
		UserAgent:      headerOrUnknown(r, "User-Agent"),
		AcceptLanguage: headerOrUnknown(r, "Accept-Language"),
		AcceptEncoding: headerOrUnknown(r, "Accept-Encoding"),
	}
}

func clientIP(r *http.Request) string {
	for _, header := range ipHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if header == "X-Forwarded-For" {
			value = strings.TrimSpace(strings.SplitN(value, ",", 2)[0])
		}
		return value
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "Unknown"
	}
	return host
}

func headerOrUnknown(r *http.Request, name string) string {
	if value := r.Header.Get(name); value != "" {
		return value
	}
	return "Unknown"
}

// TokenPair is the issued credential pair handed back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// SessionService issues paired access/refresh tokens, persists refresh
// sessions keyed by hashed token, and enforces the per-user admission policy.
type SessionService struct {
	db                *sql.DB
	sessions          *repository.SessionRepository
	accessCodec       *TokenCodec
	refreshCodec      *TokenCodec
	maxActiveSessions int
}

func NewSessionService(db *sql.DB, sessions *repository.SessionRepository, cfg *config.Config) (*SessionService, error) {
	accessCodec, err := NewTokenCodec(TokenTypeAccess, cfg.JWTAccessSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refreshCodec, err := NewTokenCodec(TokenTypeRefresh, cfg.JWTRefreshSecret, cfg.JWTAlgorithm, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &SessionService{
		db:                db,
		sessions:          sessions,
		accessCodec:       accessCodec,
		refreshCodec:      refreshCodec,
		maxActiveSessions: cfg.MaxActiveSessions,
	}, nil
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// hashToken binds the stored hash to the token's own subject and issue time,
// so an identical raw value issued for another subject maps elsewhere.
func hashToken(token *Token, rawToken string) string {
	return hashString(fmt.Sprintf("%s-%s-%d", rawToken, token.Subject, token.IssuedAt.Unix()))
}

func sanitizeHeader(value string) string {
	value = unsafeHeaderChars.ReplaceAllString(value, "")
	if len(value) > maxHeaderLength {
		value = value[:maxHeaderLength]
	}
	return value
}

// DeviceID derives a stable, non-reversible fingerprint for "the same client"
// from the sanitized request metadata.
func DeviceID(meta RequestMeta) string {
	signature := fmt.Sprintf("%s-%s-%s-%s",
		meta.IPAddress,
		sanitizeHeader(meta.UserAgent),
		sanitizeHeader(meta.AcceptLanguage),
		sanitizeHeader(meta.AcceptEncoding),
	)
	return hashString(signature)[:16]
}

// CreateTokens encodes an access/refresh pair and persists the refresh
// session inside one transaction, applying the admission policy first:
// expired sessions are revoked, same-device sessions are replaced, and the
// oldest sessions beyond the active cap are evicted. When a superseded
// session id is given (rotation), it is revoked in the same transaction, so
// a failed insert never invalidates the token the client still holds.
func (s *SessionService) CreateTokens(ctx context.Context, meta RequestMeta, user *entity.User, supersededSessionID string) (*TokenPair, error) {
	accessToken, err := s.accessCodec.Encode(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refreshCodec.Encode(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	refreshClaims, err := s.refreshCodec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}

	deviceID := DeviceID(meta)
	userAgent := meta.UserAgent
	if len(userAgent) > maxHeaderLength {
		userAgent = userAgent[:maxHeaderLength]
	}

	session := &entity.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		DeviceID:  deviceID,
		TokenHash: hashToken(refreshClaims, refreshToken),
		IPAddress: meta.IPAddress,
		UserAgent: userAgent,
		Revoked:   false,
		ExpiresAt: refreshClaims.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txSessions := s.sessions.WithTx(tx)
	if err := s.admitSession(ctx, txSessions, session); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to persist session")
		return nil, err
	}

	if supersededSessionID != "" {
		if err := txSessions.Revoke(ctx, user.ID, supersededSessionID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"device_id": deviceID,
	}).Info("Session created")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

func (s *SessionService) admitSession(ctx context.Context, sessions *repository.SessionRepository, session *entity.Session) error {
	now := time.Now().UTC()

	if err := sessions.RevokeExpired(ctx, session.UserID, now); err != nil {
		return err
	}
	if err := sessions.DeleteByDevice(ctx, session.UserID, session.DeviceID); err != nil {
		return err
	}

	// Evict down to cap-1 so the row about to be inserted lands exactly at
	// the cap, oldest sessions first.
	stale, err := sessions.FindActiveIDsBeyond(ctx, session.UserID, s.maxActiveSessions-1)
	if err != nil {
		return err
	}
	if err := sessions.RevokeByIDs(ctx, stale); err != nil {
		return err
	}

	return sessions.Create(ctx, session)
}

// ValidateAccessToken is a pure decode; access tokens are self-certifying and
// never hit the store.
func (s *SessionService) ValidateAccessToken(tokenString string) (*Token, error) {
	return s.accessCodec.Decode(tokenString)
}

// ValidateRefreshToken decodes the token and requires a matching un-revoked
// session row. The store lookup is what makes refresh tokens revocable: a
// valid signature alone says nothing about rotation or logout.
func (s *SessionService) ValidateRefreshToken(ctx context.Context, tokenString string) (*Token, *entity.Session, error) {
	token, err := s.refreshCodec.Decode(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidRefreshToken
	}

	session, err := s.sessions.FindActiveByTokenHash(ctx, hashToken(token, tokenString))
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrInvalidRefreshToken
	}
	return token, session, nil
}

func (s *SessionService) FindActiveSessions(ctx context.Context, userID string) ([]*entity.Session, error) {
	return s.sessions.FindActiveByUser(ctx, userID, activeSessionLimit)
}

// RevokeSession is idempotent: revoking a revoked, unknown, or foreign
// session is a silent no-op, so callers cannot probe session existence.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.sessions.Revoke(ctx, userID, sessionID)
}

// RevokeRefreshToken revokes the session backing the raw token, scoped to the
// token's own subject. Idempotent.
func (s *SessionService) RevokeRefreshToken(ctx context.Context, tokenString string) error {
	token, err := s.refreshCodec.Decode(tokenString)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	return s.sessions.RevokeByTokenHash(ctx, token.Subject, hashToken(token, tokenString))
}
