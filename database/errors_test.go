package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), true, NoRowsErr},
		{"tx done", sql.ErrTxDone, true, TxDoneErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true, DuplicateKeyErr},
		{"mysql unknown", &mysql.MySQLError{Number: 9999}, true, UnknownErr},
		{"pq duplicate", &pq.Error{Code: "23505"}, true, DuplicateKeyErr},
		{"pq connection", &pq.Error{Code: "08006"}, true, ConnectionErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: items.id (1555)"), true, DuplicateKeyErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: items (1)"), true, NoTableErr},
		{"other", errors.New("boom"), false, UnknownErr},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			is, kind := IsSqlError(c.err)
			assert.Equal(t, c.is, is)
			assert.Equal(t, c.kind, kind)
		})
	}
}

func TestWrapStoreError(t *testing.T) {
	assert.NoError(t, wrapStoreError("insert", nil))

	cause := &mysql.MySQLError{Number: 1048}
	err := wrapStoreError("insert", cause)
	se, ok := AsStoreError(err)
	require.True(t, ok)
	assert.Equal(t, "insert", se.Op)
	assert.Equal(t, NotNullViolationErr, se.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "not_null_violation")

	assert.Same(t, err, wrapStoreError("outer", err))
}

func TestSQLError_String(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
}
