// Package session gives every browser an anonymous, stable client id carried in a signed
// "sid" cookie.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// CookieName is the name of the session cookie.
const CookieName = "sid"

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// ErrInvalid is returned for tokens that are malformed, expired or not signed by us.
var ErrInvalid = errors.New("session: invalid token")

// Issuer signs and verifies session tokens.
type Issuer struct {
	key    []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer derives the signing key from secret. Secure marks cookies HTTPS-only.
func NewIssuer(secret []byte, secure bool) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: empty secret")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("99 session v1")), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return &Issuer{key: key, secure: secure, ttl: DefaultTTL, now: time.Now}, nil
}

// Issue returns a signed token for clientID.
func (i *Issuer) Issue(clientID string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse verifies token and returns the client id it carries.
func (i *Issuer) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims.Subject, nil
}

// ClientID returns the client id of r's session cookie, if it carries a valid one.
func (i *Issuer) ClientID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	id, err := i.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

// Ensure returns the client id of r's session, issuing a new one and setting the cookie
// on w when r has none.
func (i *Issuer) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, ok := i.ClientID(r); ok {
		return id, nil
	}
	id := uuid.NewString()
	token, err := i.Issue(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, i.cookie(token))
	return id, nil
}

func (i *Issuer) cookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(i.ttl / time.Second),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if i.secure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
