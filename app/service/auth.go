package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/entity"
	"go-auth-api/app/repository"
)

const backgroundTaskTimeout = 10 * time.Second

type AsyncRunner func(task func())

type AuthServiceOption func(*AuthService)

// AuthService ties users, credentials, sessions and verification tokens
// together into the account lifecycle operations the HTTP layer exposes.
type AuthService struct {
	db           *sql.DB
	users        *repository.UserRepository
	hasher       *PasswordHasher
	sessions     *SessionService
	verification *VerificationService
	email        EmailSender
	frontendURL  string
	asyncRunner  AsyncRunner
}

func NewAuthService(
	db *sql.DB,
	users *repository.UserRepository,
	hasher *PasswordHasher,
	sessions *SessionService,
	verification *VerificationService,
	email EmailSender,
	frontendURL string,
	opts ...AuthServiceOption,
) *AuthService {
	svc := &AuthService{
		db:           db,
		users:        users,
		hasher:       hasher,
		sessions:     sessions,
		verification: verification,
		email:        email,
		frontendURL:  frontendURL,
		asyncRunner: func(task func()) {
			go task()
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) AuthServiceOption {
	return func(s *AuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

// Signup creates the account and logs the new user straight in. Uniqueness
// rests on the users.email unique key; the duplicate-key error maps to
// ErrUserExists so concurrent signups cannot race past a pre-check.
func (s *AuthService) Signup(ctx context.Context, meta RequestMeta, name, email, password string) (*entity.User, *TokenPair, error) {
	passwordHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	user := &entity.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         entity.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsDuplicateEntry(err) {
			return nil, nil, ErrUserExists
		}
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User registered")

	s.asyncRunner(func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		if err := s.deliverVerificationEmail(taskCtx, user); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to send verification email")
		}
	})

	tokens, err := s.sessions.CreateTokens(ctx, meta, user, "")
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password collapse into the same error so responses cannot enumerate
// accounts.
func (s *AuthService) Login(ctx context.Context, meta RequestMeta, email, password string) (*entity.User, *TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		logrus.WithField("email", email).Warn("Failed login attempt")
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.sessions.CreateTokens(ctx, meta, user, "")
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Refresh rotates a valid refresh token into a fresh pair, revoking the
// presented token's session in the same transaction as the new insert.
func (s *AuthService) Refresh(ctx context.Context, meta RequestMeta, refreshToken string) (*entity.User, *TokenPair, error) {
	token, session, err := s.sessions.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, token.Subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}

	tokens, err := s.sessions.CreateTokens(ctx, meta, user, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Logout revokes the session backing the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshToken(ctx, refreshToken)
}

// ForgetPassword issues a reset token and emails it when the account exists.
// Callers always report the same success message; only storage errors
// surface.
func (s *AuthService) ForgetPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		logrus.WithField("email", email).Info("Password reset requested for unknown email")
		return nil
	}

	rawToken, err := s.verification.CreateToken(ctx, user.ID, entity.VerificationPasswordReset)
	if err != nil {
		return err
	}

	s.asyncRunner(func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()

		link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, rawToken)
		body := fmt.Sprintf("Hello %s,\n\nUse the link below to reset your password:\n\n%s\n\nIf you did not request this, ignore this email.", user.Name, link)
		if err := s.email.Send(taskCtx, user.Email, "Reset your password", body); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to send password reset email")
		}
	})

	return nil
}

// ResetPassword consumes a reset token and stores the new password hash in
// one transaction, so a retried request cannot reuse the token.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	record, err := s.verification.VerifyToken(ctx, rawToken, entity.VerificationPasswordReset)
	if err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.users.WithTx(tx).UpdatePassword(ctx, record.UserID, passwordHash); err != nil {
		return err
	}
	if err := s.verification.ConsumeTokenWith(ctx, s.verification.tokens.WithTx(tx), record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logrus.WithField("user_id", record.UserID).Info("Password reset completed")
	return nil
}

// SendVerificationEmail re-issues the email verification token for a logged
// in user who has not verified yet.
func (s *AuthService) SendVerificationEmail(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	return s.deliverVerificationEmail(ctx, user)
}

func (s *AuthService) deliverVerificationEmail(ctx context.Context, user *entity.User) error {
	rawToken, err := s.verification.CreateToken(ctx, user.ID, entity.VerificationEmail)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, rawToken)
	body := fmt.Sprintf("Hello %s,\n\nPlease verify your email address using the link below:\n\n%s", user.Name, link)
	return s.email.Send(ctx, user.Email, "Verify your email", body)
}

// VerifyEmail consumes an email verification token and flips the user's
// verified flag in one transaction.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	record, err := s.verification.VerifyToken(ctx, rawToken, entity.VerificationEmail)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.users.WithTx(tx).MarkEmailVerified(ctx, record.UserID); err != nil {
		return err
	}
	if err := s.verification.ConsumeTokenWith(ctx, s.verification.tokens.WithTx(tx), record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logrus.WithField("user_id", record.UserID).Info("Email verified")
	return nil
}

// ChangePassword replaces the password after re-checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !s.hasher.Verify(ctx, oldPassword, user.PasswordHash) {
		return ErrPasswordMismatch
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, passwordHash)
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.users.UpdateName(ctx, userID, name); err != nil {
		return nil, err
	}
	user.Name = name
	user.UpdatedAt = time.Now().UTC()
	return user, nil
}

func (s *AuthService) GetSessions(ctx context.Context, userID string) ([]*entity.Session, error) {
	return s.sessions.FindActiveSessions(ctx, userID)
}

func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.sessions.RevokeSession(ctx, userID, sessionID)
}

func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return s.users.List(ctx, limit, offset)
}
