package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/auth"
	"github.com/frahmantamala/song-requests/internal/transport"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

// Authenticate validates the bearer token and stores the operator on the context.
func Authenticate(validator auth.TokenValidator, lg *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := base.ExtractTokenFromHeader(r)
			if token == "" {
				base.HandleServiceError(w, internal.NewUnauthorizedError("Missing bearer token", internal.ErrCodeInvalidToken))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				lg.Warn("rejected admin token", "error", err, "path", r.URL.Path)
				base.HandleServiceError(w, err)
				return
			}

			ctx := internal.ContextWithUser(r.Context(), claims.AdminUser())
			ctx = logger.With(ctx, "admin_id", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
