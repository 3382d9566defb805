package service

import "errors"

var (
	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrWrongTokenType       = errors.New("unexpected token type")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrPasswordMismatch     = errors.New("invalid old password")
	ErrEmailAlreadyVerified = errors.New("email is already verified")
	ErrProductNotFound      = errors.New("product not found")
)
