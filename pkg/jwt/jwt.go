package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the session token claims issued by the wallet-auth
// flow upstream. The gateway validates them locally with the shared
// HMAC secret.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Username      string `json:"username,omitempty"`
}

// Manager validates (and, for tests and local tooling, signs) session tokens.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager creates a new JWT manager with the shared HMAC secret.
func NewManager(secret, issuer string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Manager{secret: []byte(secret), issuer: issuer}, nil
}

// Validate parses and verifies a session token, returning its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Sign issues a token for the given user. Used by tests and local tooling;
// production tokens come from the upstream auth service.
func (m *Manager) Sign(userID, walletAddress, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:        userID,
		WalletAddress: walletAddress,
		Username:      username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}
