package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"go-auth-api/app/middleware"
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

const findUserByIDQuery = `(?s)SELECT id, name, email, email_verified, password_hash, role, created_at, updated_at\s+FROM users WHERE id = \?`

func newAuthMiddleware(t *testing.T) (*middleware.AuthMiddleware, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := &config.Config{
		JWTAlgorithm:            "HS256",
		JWTAccessSecret:         "access-secret",
		JWTRefreshSecret:        "refresh-secret",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         time.Hour,
		MaxActiveSessions:       3,
		VerificationTokenSecret: "verification-secret",
		PasswordResetTTL:        15 * time.Minute,
		EmailVerificationTTL:    24 * time.Hour,
		Argon2: config.Argon2Config{
			Time:        1,
			MemoryKiB:   8 * 1024,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
			Workers:     1,
		},
	}

	sessions, err := service.NewSessionService(db, repository.NewSessionRepository(db), cfg)
	if err != nil {
		t.Fatalf("failed to build session service: %v", err)
	}
	users := service.NewAuthService(
		db,
		repository.NewUserRepository(db),
		service.NewPasswordHasher(cfg.Argon2),
		sessions,
		service.NewVerificationService(db, repository.NewVerificationTokenRepository(db), cfg),
		service.LogEmailSender{},
		"http://localhost:3000",
	)

	return middleware.NewAuthMiddleware(sessions, users), mock, func() { _ = db.Close() }
}

func invoke(t *testing.T, handler echo.HandlerFunc, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func accessTokenFor(t *testing.T, userID string) string {
	t.Helper()

	codec, err := service.NewTokenCodec(service.TokenTypeAccess, "access-secret", "HS256", 15*time.Minute)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	token, err := codec.Encode(userID, "user@example.com")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return token
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	mw, _, cleanup := newAuthMiddleware(t)
	defer cleanup()

	handler := mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := invoke(t, handler, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_MalformedHeader(t *testing.T) {
	mw, _, cleanup := newAuthMiddleware(t)
	defer cleanup()

	handler := mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, header := range []string{"Token abc", "Bearer", "Bearer a b"} {
		rec := invoke(t, handler, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for header %q, got %d", header, rec.Code)
		}
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw, _, cleanup := newAuthMiddleware(t)
	defer cleanup()

	handler := mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := invoke(t, handler, "Bearer not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	mw, _, cleanup := newAuthMiddleware(t)
	defer cleanup()

	var gotUserID, gotEmail any
	handler := mw.RequireAuth(func(c echo.Context) error {
		gotUserID = c.Get(middleware.ContextKeyUserID)
		gotEmail = c.Get(middleware.ContextKeyUserEmail)
		return c.NoContent(http.StatusOK)
	})

	rec := invoke(t, handler, "Bearer "+accessTokenFor(t, "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Fatalf("expected user_id user-1, got %v", gotUserID)
	}
	if gotEmail != "user@example.com" {
		t.Fatalf("expected user email to be set, got %v", gotEmail)
	}
}

func TestRequireAuth_RejectsRefreshToken(t *testing.T) {
	mw, _, cleanup := newAuthMiddleware(t)
	defer cleanup()

	codec, err := service.NewTokenCodec(service.TokenTypeRefresh, "refresh-secret", "HS256", time.Hour)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	refreshToken, err := codec.Encode("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	handler := mw.RequireAuth(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := invoke(t, handler, "Bearer "+refreshToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token on access endpoint, got %d", rec.Code)
	}
}

func TestRequireAdmin_Forbidden(t *testing.T) {
	mw, mock, cleanup := newAuthMiddleware(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(findUserByIDQuery).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("user-1", "Test User", "user@example.com", true, "hash", "user", now, now))

	handler := mw.RequireAuth(mw.RequireAdmin(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}))

	rec := invoke(t, handler, "Bearer "+accessTokenFor(t, "user-1"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	mw, mock, cleanup := newAuthMiddleware(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(findUserByIDQuery).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("admin-1", "Admin", "admin@example.com", true, "hash", "admin", now, now))

	handler := mw.RequireAuth(mw.RequireAdmin(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}))

	rec := invoke(t, handler, "Bearer "+accessTokenFor(t, "admin-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
