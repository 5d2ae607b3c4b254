// Package token issues and verifies the signed bearer tokens handed to
// clients. Tokens are self-contained HS256 JWTs; nothing is stored server-side,
// so a token stays usable until it expires.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// ClaimRole carries the role name inside access tokens.
	ClaimRole = "role"

	claimKind = "typ"
)

var (
	ErrExpired          = errors.New("token has expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrWrongKind        = errors.New("token kind is not accepted here")
	ErrMalformed        = errors.New("token is malformed")
)

// reservedClaims cannot be overridden through extra claims.
var reservedClaims = map[string]struct{}{
	"sub": {}, "exp": {}, "iat": {}, "nbf": {}, "iss": {}, "jti": {}, "aud": {}, claimKind: {},
}

type Claims struct {
	Subject   string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

func (c *Claims) Role() string {
	if c == nil {
		return ""
	}
	role, _ := c.Extra[ClaimRole].(string)
	return role
}

type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

type Option func(*Issuer)

func WithIssuerName(name string) Option {
	return func(i *Issuer) {
		i.issuer = strings.TrimSpace(name)
	}
}

// WithClock replaces the time source used for both issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIssuer(secret string, accessTTL time.Duration, refreshTTL time.Duration, opts ...Option) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	issuer := &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}

	return issuer, nil
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccessToken signs a short-lived token for subject. Extra claims such as
// the role name are embedded in the payload; reserved registered claims in
// extra are ignored.
func (i *Issuer) IssueAccessToken(subject string, extra map[string]any) (string, error) {
	return i.issue(subject, KindAccess, i.accessTTL, extra)
}

// IssueRefreshToken signs a long-lived token that carries identity only.
func (i *Issuer) IssueRefreshToken(subject string) (string, error) {
	return i.issue(subject, KindRefresh, i.refreshTTL, nil)
}

func (i *Issuer) issue(subject string, kind Kind, ttl time.Duration, extra map[string]any) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}

	now := i.now().UTC()
	claims := jwt.MapClaims{}
	for key, value := range extra {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		claims[key] = value
	}

	claims["sub"] = subject
	claims[claimKind] = string(kind)
	claims["jti"] = uuid.NewString()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind, in that order, and returns the
// decoded claims. Every failure is one of ErrExpired, ErrInvalidSignature,
// ErrWrongKind or ErrMalformed.
func (i *Issuer) Verify(tokenString string, expected Kind) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMalformed
	}

	parsed, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, ErrMalformed
	}

	kind, _ := mapClaims[claimKind].(string)
	if kind == "" {
		return nil, ErrMalformed
	}
	if Kind(kind) != expected {
		return nil, ErrWrongKind
	}

	claims := &Claims{
		Subject: subject,
		Kind:    Kind(kind),
		Extra:   map[string]any{},
	}
	claims.ID, _ = mapClaims["jti"].(string)
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	for key, value := range mapClaims {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		claims.Extra[key] = value
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
