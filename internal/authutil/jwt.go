// Package authutil mints and validates the bearer tokens that identify a
// chat user on REST calls and the realtime socket.
package authutil

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	secretOnce sync.Once // key is read and initialized once
	secretKey  []byte
)

// getSecret retrieves the signing key from the environment or defaults for
// development.
func getSecret() []byte {
	secretOnce.Do(func() {
		key := os.Getenv("CHAT_AUTH_SECRET")
		if key == "" {
			key = "dev-secret-change-me"
		}
		secretKey = []byte(key)
	})
	return secretKey
}

// IssueToken returns a signed JWT for the provided user id.
func IssueToken(userID int64) (string, error) {
	if userID == 0 {
		return "", errors.New("user id required")
	}
	claims := jwt.MapClaims{
		"user_id": strconv.FormatInt(userID, 10),
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getSecret())
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(h string) string {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// ValidateToken parses a token string, validates the signature, and returns
// the embedded user id.
func ValidateToken(tokenStr string) (int64, error) {
	if tokenStr == "" {
		return 0, errors.New("empty token")
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return getSecret(), nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token claims")
	}
	switch v := claims["user_id"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id == 0 {
			return 0, errors.New("invalid user id claim")
		}
		return id, nil
	case float64:
		if v == 0 {
			return 0, errors.New("invalid user id claim")
		}
		return int64(v), nil
	default:
		return 0, errors.New("missing user id claim")
	}
}
