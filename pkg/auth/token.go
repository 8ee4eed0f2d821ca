package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrEmptyClientID = errors.New("clientID cannot be empty")
	ErrShortSecret   = errors.New("secret must be at least 32 characters")
)

// DefaultTokenDuration is the lifetime of a minted handshake token
const DefaultTokenDuration = 15 * time.Minute

// Claims carried by a client handshake token
type Claims struct {
	ClientID  string    `json:"client_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// TokenManager mints and refreshes the HS256 token a client presents
// during the transport handshake. Token returns a cached token until
// it nears expiry, then mints a fresh one under a new session ID.
//
// Concurrent Safety:
// 1. mu guards the cached token and its expiry
// 2. secretKey and clientID are immutable after construction
type TokenManager struct {
	secretKey     []byte
	clientID      string
	tokenDuration time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ transport.TokenSource = (*TokenManager)(nil)

// NewTokenManager creates a token manager.
// Returns an error if the secret is shorter than 32 characters (security requirement).
func NewTokenManager(secret, clientID string, tokenDuration time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	if clientID == "" {
		return nil, ErrEmptyClientID
	}
	if tokenDuration <= 0 {
		tokenDuration = DefaultTokenDuration
	}

	return &TokenManager{
		secretKey:     []byte(secret),
		clientID:      clientID,
		tokenDuration: tokenDuration,
	}, nil
}

// Token returns a valid handshake token, minting a new one when the
// cached token has less than a fifth of its lifetime left.
func (m *TokenManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.expires) > m.tokenDuration/5 {
		return m.token, nil
	}

	token, expires, err := m.mint()
	if err != nil {
		return "", err
	}
	m.token = token
	m.expires = expires
	return token, nil
}

// mint signs a fresh token under a new session ID
func (m *TokenManager) mint() (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.tokenDuration)

	claims := jwt.MapClaims{
		"client_id":  m.clientID,
		"session_id": uuid.New().String(),
		"exp":        expiresAt.Unix(),
		"iat":        now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies a handshake token and returns its claims
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	clientID, ok := claimsMap["client_id"].(string)
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing or invalid client_id", ErrInvalidClaims)
	}

	sessionID, ok := claimsMap["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("%w: missing or invalid session_id", ErrInvalidClaims)
	}

	expiresAtFloat, ok := claimsMap["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrInvalidClaims)
	}
	issuedAtFloat, ok := claimsMap["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid iat", ErrInvalidClaims)
	}

	return &Claims{
		ClientID:  clientID,
		SessionID: sessionID,
		ExpiresAt: time.Unix(int64(expiresAtFloat), 0),
		IssuedAt:  time.Unix(int64(issuedAtFloat), 0),
	}, nil
}

// Name returns the scheme name for logging/debugging
func (m *TokenManager) Name() string {
	return "jwt-hs256"
}

// GetTokenDuration returns the configured token duration
func (m *TokenManager) GetTokenDuration() time.Duration {
	return m.tokenDuration
}
