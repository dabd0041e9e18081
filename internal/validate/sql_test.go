package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
)

func TestReadOnlySQL(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr error
	}{
		{
			name: "plain select",
			sql:  "SELECT id, name FROM users WHERE region = :region",
		},
		{
			name: "cte",
			sql:  "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent",
		},
		{
			name: "lowercase select",
			sql:  "select 1",
		},
		{
			name: "trailing semicolon tolerated",
			sql:  "SELECT 1;",
		},
		{
			name: "forbidden word inside string literal is fine",
			sql:  "SELECT * FROM log WHERE message = 'DROP TABLE users'",
		},
		{
			name: "forbidden word inside comment is fine",
			sql:  "SELECT 1 -- TODO: DELETE old rows\nFROM t",
		},
		{
			name: "quoted identifier named like keyword",
			sql:  `SELECT "update" FROM settings`,
		},
		{
			name:    "empty body",
			sql:     "   ",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "comment only",
			sql:     "-- nothing here",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "insert",
			sql:     "INSERT INTO users (name) VALUES ('x')",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "delete",
			sql:     "DELETE FROM users",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "select wrapping an update",
			sql:     "SELECT * FROM t; UPDATE t SET x = 1",
			wantErr: api.ErrMultipleStatements,
		},
		{
			name:    "pragma",
			sql:     "PRAGMA table_info(users)",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "exec buried mid statement",
			sql:     "SELECT 1 FROM t WHERE EXISTS (EXEC sp_evil)",
			wantErr: api.ErrNotReadOnly,
		},
		{
			name:    "interior semicolon",
			sql:     "SELECT 1; SELECT 2",
			wantErr: api.ErrMultipleStatements,
		},
		{
			name: "semicolon inside string literal",
			sql:  "SELECT * FROM t WHERE note = 'a;b'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadOnlySQL(tt.sql)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDDL(t *testing.T) {
	assert.NoError(t, DDL("CREATE TABLE scratch (id INTEGER)"))
	assert.NoError(t, DDL("DROP TABLE scratch;"))
	assert.NoError(t, DDL("alter table scratch add column note text"))

	err := DDL("SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidStructure)

	err = DDL("INSERT INTO t VALUES (1)")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidStructure)

	err = DDL("CREATE TABLE a (id int); DROP TABLE b")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrMultipleStatements)
}

func TestHasLimitClause(t *testing.T) {
	assert.True(t, HasLimitClause("SELECT * FROM t LIMIT 10"))
	assert.True(t, HasLimitClause("select * from t limit 5"))
	assert.False(t, HasLimitClause("SELECT * FROM t"))
	assert.False(t, HasLimitClause("SELECT * FROM t WHERE note = 'LIMIT 3'"))
	assert.False(t, HasLimitClause("SELECT * FROM t -- LIMIT in a comment"))
	// A column merely containing the letters does not count as a token match.
	assert.False(t, HasLimitClause("SELECT rate_limits FROM quotas"))
}

func TestStripTrailingTerminator(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripTrailingTerminator("SELECT 1;  \n"))
	assert.Equal(t, "SELECT 1", StripTrailingTerminator("SELECT 1;;"))
	assert.Equal(t, "SELECT 1", StripTrailingTerminator("SELECT 1"))
}
