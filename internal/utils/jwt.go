package utils

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret = []byte(os.Getenv("JWT_SECRET"))

// AdminTokenClaims authorizes calls to the admin HTTP surface. The
// realtime protocol itself carries no tokens; identity there is
// caller-supplied by design.
type AdminTokenClaims struct {
	Service string `json:"service,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuthEnabled reports whether a signing secret is configured.
// Without one the admin routes are open (dev mode).
func AdminAuthEnabled() bool { return len(jwtSecret) > 0 }

// ValidateAdminToken parses and verifies an HS256 admin token.
func ValidateAdminToken(tokenStr string) (*AdminTokenClaims, error) {
	claims := &AdminTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
