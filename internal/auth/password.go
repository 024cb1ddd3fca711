package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// bcrypt only reads the first 72 bytes of its input.
const maxPasswordBytes = 72

// HashPassword hashes a plain text password using bcrypt. The digest
// embeds the algorithm version, cost and salt. Bytes past the 72nd are
// ignored.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(passwordBytes(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the bcrypt digest.
// A malformed digest is treated as a mismatch.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), passwordBytes(password)) == nil
}

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
