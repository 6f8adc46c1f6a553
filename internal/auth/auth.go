// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken covers bad signatures, expiry and missing claims.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the JWT claims issued by the host application. UserID is the
// identity every behavior event and profile is bound to.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService validates and, for tooling and tests, issues HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService creates a token service. An empty issuer accepts any
// issuer.
func NewTokenService(secret, issuer string) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// GenerateJWT issues a token for userID valid for ttl.
func (s *TokenService) GenerateJWT(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateJWT parses and verifies a token and returns its claims.
func (s *TokenService) ValidateJWT(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id claim is required", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
