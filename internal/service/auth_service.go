package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"` // only "access" is accepted here
}

const tokenTypeAccess = "access"

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService verifies the HMAC-signed access tokens issued by the account
// service. It never touches the database.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ParseAccessToken validates signature, algorithm, expiry, and token type.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	secret := []byte(s.cfg.JWT.AccessSecret)
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok || !tok.Valid || claims.TokenType != tokenTypeAccess {
		return nil, domain.ErrTokenInvalid
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// IssueAccessToken signs a short-lived access token. Production tokens come
// from the account service; this exists for operator tooling and local runs.
func (s *AuthService) IssueAccessToken(subject uuid.UUID, role domain.UserRole, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      string(role),
		TokenType: tokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("auth_service.IssueAccessToken: %w", err)
	}
	return signed, nil
}
