// Package auth issues and verifies line tokens: HMAC-signed bearer tokens
// that scope a messaging gateway to one (project, line) pair.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid line token")

// MintLineToken issues the bearer token a messaging gateway presents when
// forwarding media for a connected line.
func MintLineToken(secret []byte, projectID, lineID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"project_id": projectID,
		"line_id":    lineID,
		"iat":        time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseLineToken verifies the signature and returns the scoped project and
// line ids.
func ParseLineToken(secret []byte, tokenString string) (projectID, lineID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	projectID, _ = claims["project_id"].(string)
	lineID, _ = claims["line_id"].(string)
	if projectID == "" || lineID == "" {
		return "", "", ErrInvalidToken
	}
	return projectID, lineID, nil
}
