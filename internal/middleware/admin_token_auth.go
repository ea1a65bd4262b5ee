package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"reportgen/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminSubject is the subject recorded for requests authenticated by the admin token.
const AdminSubject = "admin_token"

// AdminTokenAuthConfig controls shared-token authentication for admin endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	// Operation labels admin access metrics, e.g. "reload".
	Operation string
	Metrics   *observability.SecurityMetrics
}

// AdminTokenAuthMiddleware validates a shared admin token from request headers.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = defaultAdminTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(headerName))
			ok := constantTimeTokenMatch(provided, token)
			if cfg.Metrics != nil {
				cfg.Metrics.RecordAdminEndpointAccess(r.Context(), cfg.Operation, provided != "", ok)
			}
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHENTICATED")
				return
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject: AdminSubject,
				Issuer:  AdminSubject,
				Claims:  map[string]interface{}{"auth_method": AdminSubject},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

func constantTimeTokenMatch(provided string, expected string) bool {
	providedDigest := sha256.Sum256([]byte(provided))
	expectedDigest := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(providedDigest[:], expectedDigest[:]) == 1
}
