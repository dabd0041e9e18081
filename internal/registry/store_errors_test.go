package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
	"chimera/internal/database"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := &database.DB{
		DB:      sqlx.NewDb(mockDB, "sqlite3"),
		Dialect: database.DialectSQLite,
	}
	names, err := database.NewNames("", nil)
	require.NoError(t, err)
	return NewStore(db, names), mock
}

func TestGetTool_DriverErrorIsNotNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT tool_name").WillReturnError(errors.New("disk I/O error"))

	_, err := store.GetTool(context.Background(), "x", api.DefaultPersona)
	require.Error(t, err)
	assert.NotErrorIs(t, err, api.ErrToolNotFound)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountTools_PropagatesDriverError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("database is locked"))

	_, err := store.CountTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTool_PropagatesDriverError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO tools").WillReturnError(errors.New("constraint failed"))

	err := store.UpsertTool(context.Background(), &api.ToolRecord{Name: "t", Group: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
