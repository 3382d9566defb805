package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Token is the decoded claim set of a bearer token. It only ever lives in
// memory during request handling.
type Token struct {
	Subject   string
	Email     string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Email     string `json:"email"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies bearer tokens of a single type. Access and
// refresh codecs carry independent secrets and TTLs, so a token of one type
// can never be accepted by the other's decoder.
type TokenCodec struct {
	tokenType TokenType
	secret    []byte
	method    jwt.SigningMethod
	ttl       time.Duration
}

func NewTokenCodec(tokenType TokenType, secret, algorithm string, ttl time.Duration) (*TokenCodec, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm: %s", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}

	return &TokenCodec{
		tokenType: tokenType,
		secret:    []byte(secret),
		method:    method,
		ttl:       ttl,
	}, nil
}

func (c *TokenCodec) Encode(userID, email string) (string, error) {
	now := time.Now().UTC()

	claims := &tokenClaims{
		Email:     email,
		TokenType: string(c.tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique per token so two tokens minted for the same subject in
			// the same second never serialize identically.
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(c.method, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the signature and expiry and returns the claims. A token
// whose embedded type differs from the codec's fails with ErrWrongTokenType,
// everything else with ErrInvalidToken.
func (c *TokenCodec) Decode(tokenString string) (*Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != string(c.tokenType) {
		return nil, ErrWrongTokenType
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &Token{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Type:      c.tokenType,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
