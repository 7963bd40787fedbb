package utils

import (
	"fmt"

	"reachly/config"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims the external auth service puts in access
// tokens. The engine only verifies; it never issues tokens.
type TokenClaims struct {
	UserID       uint   `json:"user_id"`
	SessionID    string `json:"session_id"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// ParseJWTToken validates the signature and expiry of an access token and
// returns its claims.
func ParseJWTToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
