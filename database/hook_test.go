package database

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/fcl/internal/testdb"
)

type memLogger struct {
	warns []string
}

func (l *memLogger) SetLevel(LogLevel) {}
func (l *memLogger) Debug(msg string, fields ...interface{}) {}
func (l *memLogger) Info(msg string, fields ...interface{}) {}
func (l *memLogger) Error(msg string, fields ...interface{}) {}
func (l *memLogger) Warn(msg string, fields ...interface{}) {
	l.warns = append(l.warns, msg+fmt.Sprint(fields...))
}

func TestQueryHook(t *testing.T) {
	ctx := context.Background()

	t.Run("Should print every statement in verbose mode", func(t *testing.T) {
		db := testdb.Open(t)
		var buf bytes.Buffer
		db.AddQueryHook(NewQueryHook(WithVerbose(true), WithWriter(&buf)))

		_, err := db.NewSelect().Model((*testdb.Item)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "[BUN]")
		assert.Contains(t, buf.String(), "SELECT count(*)")
	})

	t.Run("Should print only failures by default", func(t *testing.T) {
		db := testdb.Open(t)
		var buf bytes.Buffer
		db.AddQueryHook(NewQueryHook(WithWriter(&buf)))

		_, err := db.NewSelect().Model((*testdb.Item)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Empty(t, buf.String())

		_, err = db.ExecContext(ctx, "SELECT * FROM missing_table")
		require.Error(t, err)
		assert.Contains(t, buf.String(), "missing_table")
	})

	t.Run("Should honour the environment override", func(t *testing.T) {
		t.Setenv("FCL_TEST_QUERY_LOG", "0")
		db := testdb.Open(t)
		var buf bytes.Buffer
		db.AddQueryHook(NewQueryHook(WithVerbose(true), WithWriter(&buf), FromEnv("FCL_TEST_QUERY_LOG")))

		_, err := db.ExecContext(ctx, "SELECT * FROM missing_table")
		require.Error(t, err)
		assert.Empty(t, buf.String())
	})
}

func TestSlowQueryHook(t *testing.T) {
	db := testdb.Open(t)
	log := &memLogger{}
	db.AddQueryHook(&SlowQueryHook{Threshold: -time.Second, Logger: log})

	_, err := db.NewSelect().Model((*testdb.Item)(nil)).Count(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, log.warns)
	assert.Contains(t, log.warns[0], "slow query")
}
