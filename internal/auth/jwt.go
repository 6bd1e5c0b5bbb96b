package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token use values stored in the token_use claim. Access tokens authenticate
// HTTP requests and websocket handshakes; refresh tokens are only accepted by
// the refresh endpoint.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload shared by access and refresh tokens.
type Claims struct {
	Email                string `json:"email,omitempty"`
	Name                 string `json:"name,omitempty"`
	TokenUse             string `json:"token_use"`
	jwt.RegisteredClaims
}

// UserID returns the numeric user identity carried in the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Manager signs and validates the access/refresh token pair.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewManager returns a configured token manager.
func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess issues a signed access token for a user.
func (m *Manager) IssueAccess(userID int64, email, name string) (string, error) {
	return m.sign(userID, email, name, UseAccess, m.accessSecret, m.accessTTL)
}

// IssueRefresh issues a signed refresh token for a user.
func (m *Manager) IssueRefresh(userID int64, email, name string) (string, error) {
	return m.sign(userID, email, name, UseRefresh, m.refreshSecret, m.refreshTTL)
}

func (m *Manager) sign(userID int64, email, name, use string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:    email,
		Name:     name,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(tokenString string) (*Claims, error) {
	return m.verify(tokenString, UseAccess, m.accessSecret)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(tokenString string) (*Claims, error) {
	return m.verify(tokenString, UseRefresh, m.refreshSecret)
}

func (m *Manager) verify(tokenString, use string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenUse != use {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
