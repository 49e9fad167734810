package reset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("reset request not found")

// Request is an outstanding password-reset handshake. There is at most one
// per email.
type Request struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewToken returns two random v4 UUIDs joined by a dash (~244 random bits).
func NewToken() string {
	return uuid.NewString() + "-" + uuid.NewString()
}

// HashToken is the form a token is stored and looked up by. Raw tokens are
// never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// New builds a fresh request for email. ID is assigned by storage.
func New(email string, now time.Time) Request {
	return Request{
		Email:     email,
		Token:     NewToken(),
		CreatedAt: now.UTC(),
	}
}

// Expired reports whether r is older than ttl at now. A non-positive ttl
// never expires.
func (r Request) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(r.CreatedAt.Add(ttl))
}
