// Package otp issues short numeric one-time codes and hashes them for storage.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// Generate returns a uniformly random numeric code of the given length,
// leading zeros included.
func Generate(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("otp: invalid length %d", digits)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generate: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

type Hasher interface {
	Hash(code string) (string, error)
	Matches(hash, code string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), h.Cost)
	if err != nil {
		return "", fmt.Errorf("otp: hash: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Matches(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
