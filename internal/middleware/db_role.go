package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultDBRoleClaim names the JWT claim carrying the database role.
const DefaultDBRoleClaim = "db_role"

type dbRoleContextKey struct{}

// DBRoleContext carries validated database role information.
type DBRoleContext struct {
	Role      string
	Validated bool
}

// WithDBRole attaches the database role to the request context.
func WithDBRole(ctx context.Context, role string, validated bool) context.Context {
	return context.WithValue(ctx, dbRoleContextKey{}, DBRoleContext{
		Role:      role,
		Validated: validated,
	})
}

// DBRoleFromContext extracts the database role from context.
func DBRoleFromContext(ctx context.Context) (DBRoleContext, bool) {
	role, ok := ctx.Value(dbRoleContextKey{}).(DBRoleContext)
	return role, ok
}

// RoleFromContext returns the database role for report queries run under ctx.
// It matches dbexec.RoleExecutorConfig.RoleFromCtx.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := DBRoleFromContext(ctx)
	if !ok || !role.Validated {
		return "", false
	}
	return role.Role, true
}

// DBRoleMiddleware reads the database role claim from the authenticated token.
// When availableRoles is non-empty the role must be one of them.
func DBRoleMiddleware(claimName string, availableRoles []string) func(http.Handler) http.Handler {
	if claimName == "" {
		claimName = DefaultDBRoleClaim
	}

	allowed := make(map[string]struct{}, len(availableRoles))
	for _, role := range availableRoles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, authenticated := AuthFromContext(r.Context())
			if !authenticated {
				WriteError(w, http.StatusUnauthorized, "missing authentication", "UNAUTHENTICATED")
				return
			}

			raw, ok := authCtx.Claims[claimName]
			if !ok {
				WriteError(w, http.StatusForbidden, fmt.Sprintf("missing %s claim", claimName), "FORBIDDEN")
				return
			}

			role, ok := raw.(string)
			if !ok || role == "" {
				WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s claim type", claimName), "BAD_REQUEST")
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[role]; !ok {
					WriteError(w, http.StatusForbidden, fmt.Sprintf("invalid database role: %s", role), "FORBIDDEN")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithDBRole(r.Context(), role, true)))
		})
	}
}
