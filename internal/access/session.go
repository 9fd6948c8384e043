// Package access gates receipt generation behind Telegram group membership.
//
// The server side is Gate: it verifies logins (Telegram widget, username,
// or an optional emergency credential) and issues 24 hour JWT sessions.
// The client side is Client: a small state machine that logs in against a
// running server and keeps the session token on disk.
package access

import (
	"errors"
	"fmt"
	"time"

	"receiptgen/internal/telegram"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionLifetime is how long a login stays valid, counted from the moment
// of authentication.
const SessionLifetime = 24 * time.Hour

const issuer = "receiptgen"

// Login methods recorded in the session.
const (
	MethodTelegram  = "telegram"
	MethodUsername  = "username"
	MethodEmergency = "emergency"
)

var (
	// ErrInvalidSession is returned for malformed or badly signed tokens.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired is returned for sessions older than their lifetime.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked is returned for sessions ended by logout.
	ErrSessionRevoked = errors.New("session revoked")
)

// Claims is the JWT payload of a session.
type Claims struct {
	User     telegram.User `json:"user"`
	AuthDate int64         `json:"auth_date"`
	Method   string        `json:"method"`
	jwt.RegisteredClaims
}

// AuthTime returns the moment of authentication.
func (c *Claims) AuthTime() time.Time {
	return time.Unix(c.AuthDate, 0)
}

// Expiry returns when the session stops being valid.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Session is an issued login.
type Session struct {
	Token  string `json:"token"`
	Claims *Claims
}

// Issuer signs and verifies session tokens (HS256).
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl uses SessionLifetime.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = SessionLifetime
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a session for user authenticated at authTime. The expiry is
// fixed relative to authTime.
func (i *Issuer) Issue(user telegram.User, method string, authTime time.Time) (*Session, error) {
	claims := &Claims{
		User:     user,
		AuthDate: authTime.Unix(),
		Method:   method,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", user.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(authTime.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: token, Claims: claims}, nil
}

// Parse verifies a token's signature and age.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	// A session never outlives ttl from authentication, whatever exp says.
	if i.now().Sub(claims.AuthTime()) >= i.ttl {
		return nil, ErrSessionExpired
	}
	return claims, nil
}
