package middleware

import (
	"context"
	"net/http"
	"strings"

	"reportgen/internal/report"
)

// DefaultRolesClaim names the JWT claim listing the report user's roles.
const DefaultRolesClaim = "roles"

type userContextKey struct{}

// WithUser attaches the report user to ctx.
func WithUser(ctx context.Context, user report.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the report user for ctx. Unauthenticated requests
// yield the zero User, which permission backends treat as anonymous.
func UserFromContext(ctx context.Context) report.User {
	user, _ := ctx.Value(userContextKey{}).(report.User)
	return user
}

// UserFromAuth maps validated claims to a report user. The roles claim may be
// a list or a space separated string.
func UserFromAuth(auth AuthContext, rolesClaim string) report.User {
	if rolesClaim == "" {
		rolesClaim = DefaultRolesClaim
	}
	raw := auth.Claims[rolesClaim]
	var roles []string
	if s, ok := raw.(string); ok {
		roles = strings.Fields(s)
	} else {
		roles = stringList(raw)
	}
	return report.User{ID: auth.Subject, Roles: roles}
}

// ReportUserMiddleware resolves the report user from the auth context set by
// the OIDC middleware.
func ReportUserMiddleware(rolesClaim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithUser(r.Context(), UserFromAuth(auth, rolesClaim))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
