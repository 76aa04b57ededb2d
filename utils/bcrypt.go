package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes an operator password for storage on the user record.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword checks a login attempt against the stored hash. A
// non-nil error means the credentials do not match.
func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
