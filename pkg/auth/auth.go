// Package auth provides user authentication for the HTTP API: bcrypt
// password hashing and HS256 JWT issuance and verification.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a valid bcrypt hash of a throwaway password. Authenticate
// compares against it when the user does not exist, so unknown usernames
// take as long as wrong passwords.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

// User is an API account. PasswordHash is a bcrypt hash, never the
// plaintext password.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Permissions  []string `json:"permissions"`
}

// Claims carried in issued tokens.
type Claims struct {
	Username    string
	Permissions []string
}

// Manager holds users and issues tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	mu     sync.RWMutex
	users  map[string]*User
}

// NewManager creates a manager signing tokens with secret. Tokens expire
// after ttl (default 30 minutes).
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		users:  make(map[string]*User),
	}, nil
}

// CreateUser registers a new user with a bcrypt-hashed password.
func (m *Manager) CreateUser(username, password string, permissions []string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return ErrUserExists
	}
	m.users[username] = &User{
		Username:     username,
		PasswordHash: string(hash),
		Permissions:  permissions,
	}
	return nil
}

// Authenticate checks credentials and returns a signed token on success.
func (m *Manager) Authenticate(username, password string) (string, error) {
	m.mu.RLock()
	user, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		// Burn a real bcrypt comparison so missing users cost the same
		// as wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return m.CreateToken(user)
}

// CreateToken signs a token for the user.
func (m *Manager) CreateToken(user *User) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.Username,
		"perms": user.Permissions,
		"iat":   now.Unix(),
		"exp":   now.Add(m.ttl).Unix(),
	})

	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns its claims.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	var perms []string
	if raw, ok := mapClaims["perms"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
	}

	return &Claims{Username: sub, Permissions: perms}, nil
}

// User returns the stored user record.
func (m *Manager) User(username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// HasPermission reports whether the claims grant a permission. The "admin"
// permission implies all others.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm || p == "admin" {
			return true
		}
	}
	return false
}
