package dbexec

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleFrom(role string) func(context.Context) (string, bool) {
	return func(context.Context) (string, bool) { return role, role != "" }
}

func TestRoleExecutorSetsAndResetsRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET ROLE `analyst`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("USE `hr`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("SET ROLE DEFAULT")).WillReturnResult(sqlmock.NewResult(0, 0))

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		DatabaseName: "hr",
		RoleFromCtx:  roleFrom("analyst"),
		AllowedRoles: []string{"analyst"},
		ValidateRole: true,
	})

	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	for rows.Next() {
	}
	require.NoError(t, rows.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleExecutorWithoutRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	executor := NewRoleExecutor(RoleExecutorConfig{DB: db, RoleFromCtx: roleFrom("")})
	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleValidation(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		allowedRoles []string
		validateRole bool
		wantRole     string
		wantErr      bool
	}{
		{"allowed role", "analyst", []string{"admin", "analyst"}, true, "analyst", false},
		{"role outside allowlist", "superuser", []string{"analyst"}, true, "", true},
		{"validation disabled", "superuser", []string{"analyst"}, false, "superuser", false},
		{"no role", "", []string{"analyst"}, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewRoleExecutor(RoleExecutorConfig{
				RoleFromCtx:  roleFrom(tt.role),
				AllowedRoles: tt.allowedRoles,
				ValidateRole: tt.validateRole,
			})
			role, err := executor.roleFor(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRoleNotAllowed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestStandardExecutorNilDB(t *testing.T) {
	_, err := (&StandardExecutor{}).QueryContext(context.Background(), "SELECT 1")
	assert.Equal(t, sql.ErrConnDone, err)

	_, err = (&RoleExecutor{}).QueryContext(context.Background(), "SELECT 1")
	assert.Equal(t, sql.ErrConnDone, err)
}
