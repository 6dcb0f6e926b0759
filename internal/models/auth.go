package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the access token issued by the identity provider.
// The subject is the auth user id.
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (c *JWTClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
