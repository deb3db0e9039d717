package security

import "golang.org/x/crypto/bcrypt"

// Hasher produces and checks salted bcrypt digests.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a bcrypt digest of secret. bcrypt rejects secrets longer than
// 72 bytes, which is the only failure for well-formed input.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)

	if err != nil {
		return "", err
	}

	return string(digest), nil
}

// Verify compares secret with digest in constant time. A malformed digest is
// a mismatch, never an error.
func (h *Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
