package auth

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var bcryptHash = regexp.MustCompile(`^\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}$`)

// LooksHashed reports whether s already has the shape of a stored bcrypt
// hash, in which case it is persisted unchanged.
func LooksHashed(s string) bool {
	return bcryptHash.MatchString(s)
}

// Hasher salts and hashes passwords with a tunable bcrypt cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a bcrypt hash of plain. Values that already look hashed pass
// through so re-saving a stored user is idempotent.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" || LooksHashed(plain) {
		return plain, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (h *Hasher) Verify(hashed, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
