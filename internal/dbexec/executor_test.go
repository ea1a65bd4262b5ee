package dbexec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name FROM departments").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Eng"))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT name FROM departments")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "Eng", name)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewStandardExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestExecutorFunc(t *testing.T) {
	var got string
	exec := ExecutorFunc(func(_ context.Context, query string, _ ...any) (Rows, error) {
		got = query
		return nil, sql.ErrNoRows
	})

	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, "SELECT 1", got)
}
