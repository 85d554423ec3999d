package auth

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

const userIdKey = "user_id"

func (m *JwtManager) CreateUserJwt(userId uint) (string, error) {
	claims := map[string]interface{}{
		userIdKey: strconv.FormatUint(uint64(userId), 10),
		"exp":     time.Now().Add(24 * time.Hour),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

// NoUser is the principal returned for any token that does not decode to a
// valid user id.
const NoUser = -1

// UserIdFromToken recovers the principal from a bearer token carried in a
// request body. Malformed tokens, bad signatures, expired tokens, and tokens
// without a user id all map to NoUser rather than an error.
func (m *JwtManager) UserIdFromToken(token string) int {
	decoded, err := m.auth.Decode(token)
	if err != nil {
		return NoUser
	}

	value, ok := decoded.Get(userIdKey)
	if !ok {
		return NoUser
	}

	str, ok := value.(string)
	if !ok {
		return NoUser
	}

	userId, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return NoUser
	}

	return int(userId)
}
