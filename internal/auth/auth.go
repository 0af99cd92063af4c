// Package auth разбирает и проверяет JWT-токены пользователей магазина.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PermissionOrders — право доступа к админским операциям над заказами.
const PermissionOrders = "Orders"

var (
	// ErrTokenInvalid возвращается для токена, который не прошёл проверку
	// подписи или разбор claims.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired возвращается для просроченного токена.
	ErrTokenExpired = errors.New("token is expired")
)

// Claims — полезная нагрузка токена: идентификатор пользователя и список
// выданных прав.
type Claims struct {
	UserID      int64    `json:"id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Allowed проверяет наличие права в списке claims.
func (c Claims) Allowed(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ParseToken разбирает подписанный HS256 токен и возвращает claims.
func ParseToken(token, secret string) (Claims, error) {
	var claims Claims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

// NewToken выпускает подписанный токен. Используется в тестах
// и вспомогательных утилитах.
func NewToken(userID int64, permissions []string, secret string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:      userID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
