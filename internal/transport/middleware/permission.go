package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/auth"
	"github.com/frahmantamala/song-requests/internal/transport"
)

// RequirePermissions creates a middleware that checks if user has required permissions
func RequirePermissions(checker auth.PermissionChecker, lg *slog.Logger, permissions ...string) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				base.HandleServiceError(w, internal.NewUnauthorizedError("Authentication required", internal.ErrCodeInvalidToken))
				return
			}

			if !checker.IsAdmin(user.Permissions) && !checker.HasAnyPermission(user.Permissions, permissions) {
				lg.Warn("Access denied: user lacks required permissions",
					"user_id", user.ID,
					"required_permissions", permissions,
					"user_permissions", user.Permissions)
				base.HandleServiceError(w, internal.NewForbiddenError("Insufficient permissions", internal.ErrCodeMissingPermission))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
