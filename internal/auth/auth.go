package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/song-requests/internal"
)

const PermissionManageRequests = "manage_requests"

// Claims represents JWT token claims
type Claims struct {
	UserID         string   `json:"user_id"`
	Email          string   `json:"email,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// AdminUser converts validated claims into the principal stored on the request context.
func (c *Claims) AdminUser() *internal.AdminUser {
	return &internal.AdminUser{
		ID:             c.UserID,
		Email:          c.Email,
		OrganizationID: c.OrganizationID,
		Permissions:    c.Permissions,
	}
}

// TokenValidator is what the HTTP middleware depends on.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// IssuedToken is returned by the token command.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
