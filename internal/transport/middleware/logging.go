package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/song-requests/pkg/logger"
)

// sensitiveFields are matched as substrings of header names and JSON keys.
var sensitiveFields = []string{
	"token",
	"authorization",
	"secret",
	"api_key",
	"api-key",
	"cookie",
	"credential",
	"signature",
	"email",
	"phone",
	"requester_name",
	"billing_details",
	"customer_details",
}

// opaqueBodyPaths carry raw gateway payloads; only their size is logged.
var opaqueBodyPaths = []string{
	"/api/v1/payments/webhook",
}

// LoggingMiddleware logs each call twice: on arrival, and on completion with
// the matched route and the request, organization and payment identifiers it
// touched.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.FromOr(r.Context(), base).With("req_id", middleware.GetReqID(r.Context()))

			logRequest(lg, r)

			ww := &responseWriter{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(ww, r)

			// route params are filled in by the time the handler returns
			logResponse(r, lg.With(routeFields(r).Args()...), ww, time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// routeFields names the domain objects a call addressed.
func routeFields(r *http.Request) logger.Fields {
	q := r.URL.Query()
	f := logger.Fields{
		"session_id":   q.Get("session_id"),
		"payment_ref":  q.Get("paymentIntentId"),
		"payment_code": q.Get("code"),
	}

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return f
	}
	pattern := rctx.RoutePattern()
	f["route"] = pattern
	f["organization_id"] = rctx.URLParam("orgID")
	if strings.Contains(pattern, "/integrity/") {
		f["issue_id"] = rctx.URLParam("id")
	} else {
		f["request_id"] = rctx.URLParam("id")
	}
	return f
}

func logRequest(lg *slog.Logger, r *http.Request) {
	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	body := filterSensitiveBody(bodyBytes)
	if isOpaque(r.URL.Path) {
		body = ""
	}

	lg.Info("incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"client_ip", ClientIP(r),
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
		"body", body,
		"body_size", len(bodyBytes),
	)
}

func logResponse(r *http.Request, lg *slog.Logger, rw *responseWriter, duration time.Duration) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	lg.Log(r.Context(), level, "response",
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.body.Len(),
		"body", filterSensitiveBody(rw.body.Bytes()),
	)
}

func isOpaque(path string) bool {
	for _, p := range opaqueBodyPaths {
		if path == p {
			return true
		}
	}
	return false
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(name, field) {
			return true
		}
	}
	return false
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
			continue
		}
		filtered[name] = strings.Join(values, ", ")
	}
	return filtered
}

func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		if isSensitive(string(body)) {
			return "[FILTERED - Contains sensitive data]"
		}
		return string(body)
	}

	out, err := json.Marshal(filterSensitiveJSON(data))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(out)
}

func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		filtered := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				filtered[key] = "[FILTERED]"
			} else {
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}
