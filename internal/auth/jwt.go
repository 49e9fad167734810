package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/beststore/accounts/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the lifetime of every bearer token.
const TokenTTL = 24 * time.Hour

var (
	ErrMissingSigningConfig = errors.New("jwt signing key, issuer and audience are required")
	ErrInvalidToken         = errors.New("invalid token")
)

type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Settings is fixed at process start and never mutated afterwards.
type Settings struct {
	Key      string
	Issuer   string
	Audience string
}

type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(s Settings) (*Manager, error) {
	if strings.TrimSpace(s.Key) == "" || strings.TrimSpace(s.Issuer) == "" || strings.TrimSpace(s.Audience) == "" {
		return nil, ErrMissingSigningConfig
	}

	return &Manager{
		secret:   []byte(s.Key),
		issuer:   s.Issuer,
		audience: s.Audience,
		ttl:      TokenTTL,
		now:      time.Now,
	}, nil
}

// WithClock swaps the time source. Tests use it to move past expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// Issue signs a token asserting u's id and role.
func (m *Manager) Issue(u user.User) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		UserID: strconv.FormatInt(u.ID, 10),
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks signature, issuer, audience and expiry. Any failure yields
// ErrInvalidToken and no claims.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IdentityID parses the id claim. ok is false when it is missing or not a
// positive integer.
func (c *Claims) IdentityID() (id int64, ok bool) {
	if c == nil || c.UserID == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// AsMap flattens the claim set for display.
func (c *Claims) AsMap() map[string]string {
	out := map[string]string{
		"id":   c.UserID,
		"role": c.Role,
		"iss":  c.Issuer,
		"jti":  c.ID,
	}
	if len(c.Audience) > 0 {
		out["aud"] = strings.Join(c.Audience, ",")
	}
	if c.IssuedAt != nil {
		out["iat"] = strconv.FormatInt(c.IssuedAt.Unix(), 10)
	}
	if c.ExpiresAt != nil {
		out["exp"] = strconv.FormatInt(c.ExpiresAt.Unix(), 10)
	}
	return out
}
