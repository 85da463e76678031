// Package auth implements the token issuance and validation collaborator
// consumed by instance.Instance, grounded on the JWT handling pattern in
// Innovate3D-Labs-innovate-os-frontend's auth.go (there a client parses
// tokens it receives from a server; here the Instance IS that server, so
// Service signs and verifies instead of merely decoding).
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gantryd/pkgerr"
)

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// accessTokenTTL and refreshTokenTTL mirror typical short-lived-access,
// long-lived-refresh JWT pairs.
const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// claims is the JWT payload. Subject carries the instance name so a token
// minted for one printer instance cannot be replayed against another.
type claims struct {
	jwt.RegisteredClaims
	Refresh bool `json:"refresh,omitempty"`
}

// Tokens is the pair returned on a successful Login or RefreshToken call.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service issues and validates JWTs for a single printer instance. The
// password hash is held in memory; SetPassword (re)sets it, grounded on
// the original's directory-bootstrap-then-set-password instance creation
// flow rather than a shipped default credential.
type Service struct {
	mu           sync.RWMutex
	subject      string
	secret       []byte
	passwordHash []byte
}

// NewService constructs a Service scoped to subject (the instance name),
// signing with secret.
func NewService(subject string, secret []byte) *Service {
	return &Service{subject: subject, secret: secret}
}

// SetPassword hashes and stores password, replacing any previously set one.
func (s *Service) SetPassword(password string) {
	sum := sha256Sum([]byte(password))
	s.mu.Lock()
	s.passwordHash = sum
	s.mu.Unlock()
}

// Login verifies password and, on success, mints a fresh access/refresh
// token pair.
func (s *Service) Login(password string) (*Tokens, error) {
	s.mu.RLock()
	hash := s.passwordHash
	s.mu.RUnlock()

	if hash == nil || subtle.ConstantTimeCompare(hash, sha256Sum([]byte(password))) != 1 {
		return nil, pkgerr.New(pkgerr.AuthFailed, "invalid password")
	}

	return s.mint()
}

// RefreshToken exchanges a valid refresh token for a new access/refresh pair.
func (s *Service) RefreshToken(refreshToken string) (*Tokens, error) {
	c, err := s.parse(refreshToken)
	if err != nil {
		return nil, pkgerr.New(pkgerr.RefreshTokenInvalid, err.Error())
	}
	if !c.Refresh {
		return nil, pkgerr.New(pkgerr.RefreshTokenInvalid, "not a refresh token")
	}
	return s.mint()
}

// ValidateToken verifies token and reports whether it authorises access.
// Expired and malformed tokens are distinguished so the caller can surface
// AuthTokenTimeout versus AuthTokenInvalid.
func (s *Service) ValidateToken(token string) error {
	c, err := s.parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return pkgerr.New(pkgerr.AuthTokenTimeout, "token expired")
		}
		return pkgerr.New(pkgerr.AuthTokenInvalid, err.Error())
	}
	if c.Refresh {
		return pkgerr.New(pkgerr.AuthTokenInvalid, "refresh token used as access token")
	}
	return nil
}

// Logout is a no-op at the Service level: tokens are stateless JWTs with no
// server-side revocation list, so "logout" is purely a client-side token
// discard. Present for symmetry with the supplemented Instance surface.
func (s *Service) Logout() error { return nil }

// ResetPassword replaces the stored password hash, matching SetPassword's
// semantics; kept as a distinct method to mirror the original's separate
// reset_password operation (e.g. reachable only after re-auth upstream).
func (s *Service) ResetPassword(newPassword string) error {
	s.SetPassword(newPassword)
	return nil
}

func (s *Service) mint() (*Tokens, error) {
	now := time.Now()
	access, err := s.sign(claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTokenTTL)),
		},
		Refresh: true,
	})
	if err != nil {
		return nil, err
	}

	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: now.Add(accessTokenTTL)}, nil
}

func (s *Service) sign(c claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *Service) parse(token string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token not valid")
	}
	if c.Subject != s.subject {
		return nil, errors.New("token subject mismatch")
	}
	return &c, nil
}
