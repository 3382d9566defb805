package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"go-auth-api/app/entity"
	"go-auth-api/app/repository"
	"go-auth-api/app/service"
	"go-auth-api/config"
)

var userColumns = []string{
	"id",
	"name",
	"email",
	"email_verified",
	"password_hash",
	"role",
	"created_at",
	"updated_at",
}

const (
	findUserByEmailQuery = `(?s)SELECT id, name, email, email_verified, password_hash, role, created_at, updated_at\s+FROM users WHERE email = \?`
	findUserByIDQuery    = `(?s)SELECT id, name, email, email_verified, password_hash, role, created_at, updated_at\s+FROM users WHERE id = \?`
	insertUserQuery      = `(?s)INSERT INTO users \(id, name, email, email_verified, password_hash, role, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	updatePasswordQuery  = `UPDATE users SET password_hash = \?, updated_at = \? WHERE id = \?`
	markVerifiedQuery    = `UPDATE users SET email_verified = 1, updated_at = \? WHERE id = \?`
)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (f *fakeEmailSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeEmailSender) all() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func dropTasks(func()) {}

func runInline(task func()) { task() }

func newAuthServiceWithMock(t *testing.T, runner service.AsyncRunner) (*service.AuthService, *fakeEmailSender, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := testConfig()
	cfg.VerificationTokenSecret = "verification-secret"
	cfg.PasswordResetTTL = 15 * time.Minute
	cfg.EmailVerificationTTL = 24 * time.Hour
	cfg.FrontendURL = "http://localhost:3000"
	cfg.Argon2 = config.Argon2Config{
		Time:        1,
		MemoryKiB:   8 * 1024,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		Workers:     2,
	}

	sessions, err := service.NewSessionService(db, repository.NewSessionRepository(db), cfg)
	if err != nil {
		t.Fatalf("failed to build session service: %v", err)
	}
	verification := service.NewVerificationService(db, repository.NewVerificationTokenRepository(db), cfg)
	sender := &fakeEmailSender{}

	svc := service.NewAuthService(
		db,
		repository.NewUserRepository(db),
		service.NewPasswordHasher(cfg.Argon2),
		sessions,
		verification,
		sender,
		cfg.FrontendURL,
		service.WithAsyncRunner(runner),
	)
	return svc, sender, mock, func() { _ = db.Close() }
}

func expectSessionInsert(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(revokeExpiredQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteByDeviceQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(findActiveIDsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(insertSessionQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func userRow(hash string, verified bool, role entity.Role) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userColumns).
		AddRow("user-1", "Test User", "user@example.com", verified, hash, string(role), now, now)
}

func TestAuthService_Signup(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "Test User", "user@example.com", false, sqlmock.AnyArg(), string(entity.RoleUser), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSessionInsert(mock)

	user, tokens, err := svc.Signup(context.Background(), testMeta(), "Test User", "user@example.com", "password123")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected user id to be set")
	}
	if user.Role != entity.RoleUser {
		t.Fatalf("expected default role user, got %q", user.Role)
	}
	if user.EmailVerified {
		t.Fatalf("expected new account to be unverified")
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_DuplicateEmail(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	mock.ExpectExec(insertUserQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "duplicate entry"})

	if _, _, err := svc.Signup(context.Background(), testMeta(), "Test User", "user@example.com", "password123"); !errors.Is(err, service.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Signup_SendsVerificationEmail(t *testing.T) {
	svc, sender, mock, cleanup := newAuthServiceWithMock(t, runInline)
	defer cleanup()

	mock.ExpectExec(insertUserQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec(invalidateUnusedQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertVerificationTokenQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectSessionInsert(mock)

	if _, _, err := svc.Signup(context.Background(), testMeta(), "Test User", "user@example.com", "password123"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	sent := sender.all()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].To != "user@example.com" {
		t.Fatalf("expected email to user@example.com, got %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "http://localhost:3000/verify-email?token=") {
		t.Fatalf("expected verification link in body, got %q", sent[0].Body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	hasher := newTestHasher()
	hash, err := hasher.Hash(context.Background(), "password123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(userRow(hash, true, entity.RoleUser))
	expectSessionInsert(mock)

	user, tokens, err := svc.Login(context.Background(), testMeta(), "user@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user-1, got %q", user.ID)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	hasher := newTestHasher()
	hash, err := hasher.Hash(context.Background(), "a different password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findUserByEmailQuery).
		WillReturnRows(userRow(hash, true, entity.RoleUser))

	if _, _, err := svc.Login(context.Background(), testMeta(), "user@example.com", "password123"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	mock.ExpectQuery(findUserByEmailQuery).
		WillReturnRows(sqlmock.NewRows(userColumns))

	if _, _, err := svc.Login(context.Background(), testMeta(), "nobody@example.com", "password123"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	codec, err := service.NewTokenCodec(service.TokenTypeRefresh, "refresh-secret", "HS256", time.Hour)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	refreshToken, err := codec.Encode("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	now := time.Now().UTC()
	mock.ExpectQuery(findActiveByTokenHashQuery).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("session-1", "user-1", "device", "hash", "203.0.113.7", "agent", false, now.Add(time.Hour), now))
	mock.ExpectQuery(findUserByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("irrelevant", true, entity.RoleUser))

	mock.ExpectBegin()
	mock.ExpectExec(revokeExpiredQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteByDeviceQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(findActiveIDsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(insertSessionQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(revokeSessionQuery).
		WithArgs("session-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, tokens, err := svc.Refresh(context.Background(), testMeta(), refreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if tokens.RefreshToken == refreshToken {
		t.Fatalf("expected a rotated refresh token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_InvalidToken(t *testing.T) {
	svc, _, _, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	if _, _, err := svc.Refresh(context.Background(), testMeta(), "garbage"); !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_ForgetPassword_UnknownEmail(t *testing.T) {
	svc, sender, mock, cleanup := newAuthServiceWithMock(t, runInline)
	defer cleanup()

	mock.ExpectQuery(findUserByEmailQuery).
		WillReturnRows(sqlmock.NewRows(userColumns))

	if err := svc.ForgetPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("forget password failed: %v", err)
	}
	if len(sender.all()) != 0 {
		t.Fatalf("expected no email for unknown address")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ForgetPassword_SendsResetEmail(t *testing.T) {
	svc, sender, mock, cleanup := newAuthServiceWithMock(t, runInline)
	defer cleanup()

	mock.ExpectQuery(findUserByEmailQuery).
		WillReturnRows(userRow("irrelevant", true, entity.RoleUser))
	mock.ExpectBegin()
	mock.ExpectExec(invalidateUnusedQuery).
		WithArgs("user-1", entity.VerificationPasswordReset).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertVerificationTokenQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.ForgetPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("forget password failed: %v", err)
	}

	sent := sender.all()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Body, "http://localhost:3000/reset-password?token=") {
		t.Fatalf("expected reset link in body, got %q", sent[0].Body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ResetPassword(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(findValidTokenQuery).
		WillReturnRows(sqlmock.NewRows(verificationTokenColumns).
			AddRow("token-1", "user-1", "hash", string(entity.VerificationPasswordReset), now.Add(time.Minute), false, now))
	mock.ExpectBegin()
	mock.ExpectExec(updatePasswordQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(markTokenUsedQuery).
		WithArgs("token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.ResetPassword(context.Background(), "raw-token", "new password 123"); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ResetPassword_InvalidToken(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	mock.ExpectQuery(findValidTokenQuery).
		WillReturnRows(sqlmock.NewRows(verificationTokenColumns))

	if err := svc.ResetPassword(context.Background(), "raw-token", "new password 123"); !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_VerifyEmail(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(findValidTokenQuery).
		WillReturnRows(sqlmock.NewRows(verificationTokenColumns).
			AddRow("token-1", "user-1", "hash", string(entity.VerificationEmail), now.Add(time.Minute), false, now))
	mock.ExpectBegin()
	mock.ExpectExec(markVerifiedQuery).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(markTokenUsedQuery).
		WithArgs("token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.VerifyEmail(context.Background(), "raw-token"); err != nil {
		t.Fatalf("verify email failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_SendVerificationEmail_AlreadyVerified(t *testing.T) {
	svc, sender, mock, cleanup := newAuthServiceWithMock(t, runInline)
	defer cleanup()

	mock.ExpectQuery(findUserByIDQuery).
		WillReturnRows(userRow("irrelevant", true, entity.RoleUser))

	if err := svc.SendVerificationEmail(context.Background(), "user-1"); !errors.Is(err, service.ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
	if len(sender.all()) != 0 {
		t.Fatalf("expected no email")
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	hasher := newTestHasher()
	hash, err := hasher.Hash(context.Background(), "old password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findUserByIDQuery).
		WillReturnRows(userRow(hash, true, entity.RoleUser))
	mock.ExpectExec(updatePasswordQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ChangePassword(context.Background(), "user-1", "old password", "new password"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ChangePassword_WrongOldPassword(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	hasher := newTestHasher()
	hash, err := hasher.Hash(context.Background(), "old password")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findUserByIDQuery).
		WillReturnRows(userRow(hash, true, entity.RoleUser))

	if err := svc.ChangePassword(context.Background(), "user-1", "not the old password", "new password"); !errors.Is(err, service.ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, mock, cleanup := newAuthServiceWithMock(t, dropTasks)
	defer cleanup()

	codec, err := service.NewTokenCodec(service.TokenTypeRefresh, "refresh-secret", "HS256", time.Hour)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	refreshToken, err := codec.Encode("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	mock.ExpectExec(revokeByTokenHashQuery).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Logout(context.Background(), refreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
