package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"

	"gorm.io/gorm"

	"mocap_platform/motion_vault/schema"
)

// Passwords are stored as the raw 32-byte sha256 digest of the password
// bytes. This keeps databases imported from earlier deployments readable.
func HashPassword(password string) []byte {
	digest := sha256.Sum256([]byte(password))
	return digest[:]
}

func CheckPassword(user schema.User, password string) bool {
	return subtle.ConstantTimeCompare(user.Password, HashPassword(password)) == 1
}

// Authenticate returns the user's id, or NoUser when the name is unknown or
// the password does not match.
func Authenticate(name, password string, db *gorm.DB) int {
	user, err := schema.GetUserByName(name, db)
	if err != nil {
		return NoUser
	}

	if !CheckPassword(user, password) {
		return NoUser
	}

	return int(user.ID)
}

const (
	passwordChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	passwordLength = 6
)

// GeneratePassword returns a random reset password from [A-Za-z0-9].
func GeneratePassword() (string, error) {
	password := make([]byte, passwordLength)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return "", fmt.Errorf("error generating password: %w", err)
		}
		password[i] = passwordChars[n.Int64()]
	}
	return string(password), nil
}
