package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordHasher is the hashing collaborator used by the user handlers.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Bcrypt implements PasswordHasher with a fixed cost.
type Bcrypt struct{ Cost int }

func (b Bcrypt) Hash(plain string) (string, error) { return HashPassword(plain, b.Cost) }
func (b Bcrypt) Verify(hash, plain string) bool    { return VerifyPassword(hash, plain) }
