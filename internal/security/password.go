package security

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt. bcrypt embeds a random
// salt in every digest, so two hashes of the same password never match
// byte-for-byte but both verify.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is
// outside bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash hashes a plain text password with bcrypt.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether plain matches the stored digest. A malformed digest
// is a mismatch.
func (h *Hasher) Verify(digest, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
