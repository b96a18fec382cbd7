package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are the claims of a bearer token.  Subject carries the user
// UUID; TokenType must be "access".
type AccessClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type,omitempty"`
}

// TokenService verifies HMAC-signed bearer tokens issued by the identity
// provider.  Issue exists for tooling and tests that need a valid token.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService for the shared secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Issue signs an access token for userID valid for ttl.
func (s *TokenService) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: "access",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token_service.Issue: %w", err)
	}
	return tok, nil
}

// ParseUserID validates tokenString and returns the user UUID in its subject.
// Every failure wraps domain.ErrUnauthorized.
func (s *TokenService) ParseUserID(tokenString string) (uuid.UUID, error) {
	if len(s.secret) == 0 {
		return uuid.Nil, fmt.Errorf("no signing secret: %w", domain.ErrUnauthorized)
	}
	tok, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return uuid.Nil, errors.Join(domain.ErrUnauthorized, err)
	}
	claims, ok := tok.Claims.(*AccessClaims)
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return uuid.Nil, fmt.Errorf("token type %q: %w", claims.TokenType, domain.ErrUnauthorized)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("subject %q: %w", claims.Subject, domain.ErrUnauthorized)
	}
	return id, nil
}
