package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/transport"
)

// LoadOpenAPIRouter loads and validates the API document.
func LoadOpenAPIRouter(ctx context.Context, path string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return legacy.NewRouter(doc)
}

// ValidateRequest rejects malformed input on documented operations. Routes
// missing from the document pass through.
func ValidateRequest(router routers.Router, lg *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				lg.Info("request failed schema validation", "path", r.URL.Path, "error", err)
				base.HandleServiceError(w, internal.NewValidationError(validationMessage(err), internal.ErrCodeValidationFailed))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validationMessage(err error) string {
	if reqErr, ok := err.(*openapi3filter.RequestError); ok {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %q: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		if reqErr.Reason != "" {
			return "invalid request body: " + reqErr.Reason
		}
		if reqErr.Err != nil {
			return "invalid request body: " + reqErr.Err.Error()
		}
	}
	return "request does not match the API schema"
}
