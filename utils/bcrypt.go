package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword bcrypt-hashes a signup password at the library default cost.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// ComparePassword checks a signin attempt against the stored hash. Returns a
// non-nil error on mismatch.
func ComparePassword(hashed string, attempt string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(attempt))
}
