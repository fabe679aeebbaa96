package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextUserKey ctxKey = "adminUser"

// AdminUser is the operator principal carried by a validated bearer token.
type AdminUser struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	OrganizationID string   `json:"organization_id,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
}

func (u *AdminUser) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}

func UserFromContext(ctx context.Context) (*AdminUser, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(ContextUserKey).(*AdminUser)
	return user, ok && user != nil
}

func ContextWithUser(ctx context.Context, user *AdminUser) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}

// UserIDFromContext returns the admin id for audit log fields, or empty.
func UserIDFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
