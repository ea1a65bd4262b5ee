package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBRoleMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, ok := RoleFromContext(r.Context()); ok {
			w.Header().Set("X-Role", role)
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		claims         map[string]interface{}
		availableRoles []string
		expectStatus   int
		expectRole     string
		expectMessage  string
	}{
		{
			name:          "missing auth context",
			expectStatus:  http.StatusUnauthorized,
			expectMessage: "missing authentication",
		},
		{
			name:          "missing db_role claim",
			claims:        map[string]interface{}{},
			expectStatus:  http.StatusForbidden,
			expectMessage: "missing db_role claim",
		},
		{
			name:          "invalid db_role type",
			claims:        map[string]interface{}{"db_role": 123},
			expectStatus:  http.StatusBadRequest,
			expectMessage: "invalid db_role claim type",
		},
		{
			name:           "role outside allowlist",
			claims:         map[string]interface{}{"db_role": "superuser"},
			availableRoles: []string{"payroll_reader", "hr_reader"},
			expectStatus:   http.StatusForbidden,
			expectMessage:  "invalid database role: superuser",
		},
		{
			name:           "allowed role",
			claims:         map[string]interface{}{"db_role": "hr_reader"},
			availableRoles: []string{"payroll_reader", "hr_reader"},
			expectStatus:   http.StatusOK,
			expectRole:     "hr_reader",
		},
		{
			name:         "any role without allowlist",
			claims:       map[string]interface{}{"db_role": "analyst"},
			expectStatus: http.StatusOK,
			expectRole:   "analyst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports/payroll", nil)
			if tt.claims != nil {
				req = req.WithContext(WithAuthContext(req.Context(), AuthContext{Claims: tt.claims}))
			}

			rec := httptest.NewRecorder()
			DBRoleMiddleware("", tt.availableRoles)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectStatus, rec.Code)
			assert.Equal(t, tt.expectRole, rec.Header().Get("X-Role"))

			if tt.expectMessage != "" {
				var payload ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
				assert.Equal(t, tt.expectMessage, payload.Error)
			}
		})
	}
}
