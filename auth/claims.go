package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// PermissionSignin is the sign-on permission every admin user must hold.
const PermissionSignin = "signin"

// SessionClaims is the session carried in the "token" cookie. It embeds
// jwt.RegisteredClaims for exp/iat and keeps the identity and permissions
// granted by the sign-on provider.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission reports whether the session was granted perm.
func (c *SessionClaims) HasPermission(perm string) bool {
	return slices.Contains(c.Permissions, perm)
}
