package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reportgen/internal/sqlutil"
)

// ErrRoleNotAllowed is returned when the mapped role is outside the allowlist.
var ErrRoleNotAllowed = errors.New("database role not allowed")

// RoleExecutor runs each report query on a dedicated connection after SET ROLE,
// so the database enforces the grants of the role mapped from the report user.
type RoleExecutor struct {
	db           *sql.DB
	databaseName string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB           *sql.DB
	DatabaseName string
	// RoleFromCtx returns the role for the report user carried by ctx.
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	return &RoleExecutor{
		db:           cfg.DB,
		databaseName: cfg.DatabaseName,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

// roleFor returns the role to apply, or "" when the query runs with the default role.
func (e *RoleExecutor) roleFor(ctx context.Context) (string, error) {
	if e.roleFromCtx == nil {
		return "", nil
	}
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return "", nil
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return "", fmt.Errorf("%w: %s", ErrRoleNotAllowed, role)
		}
	}
	return role, nil
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	role, err := e.roleFor(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	cleanup := func() {
		if role != "" {
			_, _ = conn.ExecContext(context.Background(), "SET ROLE DEFAULT")
		}
		_ = conn.Close()
	}

	if role != "" {
		// SET ROLE takes no placeholders; the role is quoted and, when validation is on, allowlisted.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET ROLE %s", sqlutil.QuoteIdentifier(role))); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to set role %s: %w", role, err)
		}
	}
	if err := e.useDatabase(ctx, conn); err != nil {
		cleanup()
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &roleAwareRows{Rows: rows, cleanup: cleanup}, nil
}

func (e *RoleExecutor) useDatabase(ctx context.Context, conn *sql.Conn) error {
	if e.databaseName == "" {
		return nil
	}
	useSQL := fmt.Sprintf("USE %s", sqlutil.QuoteIdentifier(e.databaseName))
	if _, err := conn.ExecContext(ctx, useSQL); err != nil {
		return fmt.Errorf("failed to select database %s: %w", e.databaseName, err)
	}
	return nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
