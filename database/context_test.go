package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/fcl/internal/testdb"
	"github.com/tomoncle/fcl/types"
)

func TestContext_AddAndSaveChanges(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := NewContext(db)
	defer c.Close()

	t.Run("Should stage inserts until SaveChanges", func(t *testing.T) {
		a := &testdb.Item{ID: 1, Name: "a"}
		b := &testdb.Item{ID: 2, Name: "b"}
		require.NoError(t, c.Add(a, b))
		assert.True(t, c.IsTracked(a))
		assert.Equal(t, 0, testdb.CountRows(t, db, (*testdb.Item)(nil)))

		n, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	})

	t.Run("Should flush nothing twice", func(t *testing.T) {
		n, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should reject non pointer entities", func(t *testing.T) {
		assert.Error(t, c.Add(testdb.Item{ID: 9}))
		assert.Error(t, c.Add((*testdb.Item)(nil)))
	})
}

func TestContext_SaveChangesIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, 1)
	c := NewContext(db)
	defer c.Close()

	require.NoError(t, c.Add(&testdb.Item{ID: 5, Name: "new"}, &testdb.Item{ID: 1, Name: "dup"}))
	_, err := c.SaveChanges(ctx)
	require.Error(t, err)

	se, ok := AsStoreError(err)
	require.True(t, ok)
	assert.Equal(t, DuplicateKeyErr, se.Kind)
	assert.Equal(t, 1, testdb.CountRows(t, db, (*testdb.Item)(nil)))
}

func TestContext_Remove(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	items := testdb.SeedItems(t, db, 3)
	c := NewContext(db)
	defer c.Close()

	t.Run("Should require tracking", func(t *testing.T) {
		assert.Error(t, c.Remove(items[0]))
	})

	t.Run("Should delete attached entity", func(t *testing.T) {
		require.NoError(t, c.Attach(items[0]))
		require.NoError(t, c.Remove(items[0]))
		n, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.False(t, c.IsTracked(items[0]))
		assert.Equal(t, 2, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	})

	t.Run("Should remove the tracked instance sharing a key", func(t *testing.T) {
		loaded, err := c.Find(ctx, (*testdb.Item)(nil), 2)
		require.NoError(t, err)
		require.NotNil(t, loaded)

		detached := &testdb.Item{ID: 2}
		require.NoError(t, c.Attach(detached))
		assert.False(t, c.IsTracked(detached))
		require.NoError(t, c.Remove(detached))

		got, err := c.Find(ctx, (*testdb.Item)(nil), 2)
		require.NoError(t, err)
		assert.Nil(t, got)
		c.DiscardChanges()
	})

	t.Run("Should cancel a pending insert", func(t *testing.T) {
		fresh := &testdb.Item{ID: 10, Name: "fresh"}
		require.NoError(t, c.Add(fresh))
		require.NoError(t, c.Remove(fresh))
		n, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 2, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	})
}

func TestContext_Find(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, 3)
	c := NewContext(db)
	defer c.Close()

	t.Run("Should load a row by key", func(t *testing.T) {
		got, err := c.Find(ctx, (*testdb.Item)(nil), 2)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "item-02", got.(*testdb.Item).Name)
	})

	t.Run("Should return the tracked instance", func(t *testing.T) {
		first, err := c.Find(ctx, (*testdb.Item)(nil), 3)
		require.NoError(t, err)
		second, err := c.Find(ctx, (*testdb.Item)(nil), int64(3))
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("Should see staged inserts", func(t *testing.T) {
		staged := &testdb.Item{ID: 42, Name: "staged"}
		require.NoError(t, c.Add(staged))
		got, err := c.Find(ctx, (*testdb.Item)(nil), 42)
		require.NoError(t, err)
		assert.Same(t, staged, got)
		c.DiscardChanges()
	})

	t.Run("Should hide staged deletes", func(t *testing.T) {
		got, err := c.Find(ctx, (*testdb.Item)(nil), 1)
		require.NoError(t, err)
		require.NoError(t, c.Remove(got))
		got, err = c.Find(ctx, (*testdb.Item)(nil), 1)
		require.NoError(t, err)
		assert.Nil(t, got)
		c.DiscardChanges()
	})

	t.Run("Should return nil for a missing key", func(t *testing.T) {
		got, err := c.Find(ctx, (*testdb.Item)(nil), 404)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should match composite keys", func(t *testing.T) {
		_, err := db.NewInsert().Model(&testdb.Membership{UserID: 1, GroupID: 7, Role: "owner"}).Exec(ctx)
		require.NoError(t, err)
		got, err := c.Find(ctx, (*testdb.Membership)(nil), 1, 7)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "owner", got.(*testdb.Membership).Role)

		_, err = c.Find(ctx, (*testdb.Membership)(nil), 1)
		assert.Error(t, err)
	})
}

func TestContext_Detach(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, 5)
	c := NewContext(db)
	defer c.Close()

	loaded := make([]any, 0, 5)
	for id := 1; id <= 5; id++ {
		got, err := c.Find(ctx, (*testdb.Item)(nil), id)
		require.NoError(t, err)
		loaded = append(loaded, got)
	}
	assert.Equal(t, 5, c.Tracked())

	c.Detach(loaded[0])
	c.Detach(loaded[0])
	assert.Equal(t, 4, c.Tracked())
	assert.False(t, c.IsTracked(loaded[0]))

	again, err := c.Find(ctx, (*testdb.Item)(nil), 1)
	require.NoError(t, err)
	assert.NotSame(t, loaded[0], again, "a detached row is loaded afresh")

	pending := &testdb.Item{ID: 9, Name: "pending"}
	require.NoError(t, c.Add(pending))
	c.Detach(pending)
	n, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.DiscardChanges()
	assert.Zero(t, c.Tracked())
}

func TestContext_Queries(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, 10)
	c := NewContext(db)
	defer c.Close()

	even := types.NewQueryFilter("grp = ?", "even")

	var items []*testdb.Item
	spec := types.NewQuerySpec(even, "score DESC").Skip(1).Take(2)
	require.NoError(t, c.Select(ctx, &items, spec))
	require.Len(t, items, 2)
	assert.Equal(t, 8, items[0].Score)
	assert.Equal(t, 6, items[1].Score)

	n, err := c.Count(ctx, (*testdb.Item)(nil), types.NewQuerySpec(even).Take(1))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = c.Count(ctx, (*testdb.Item)(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	ok, err := c.Exists(ctx, (*testdb.Item)(nil), types.NewQuerySpec(types.NewQueryFilter("score > ?", 100)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContext_BulkStatements(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, 6)
	c := NewContext(db)
	defer c.Close()

	tracked, err := c.Find(ctx, (*testdb.Item)(nil), 2)
	require.NoError(t, err)

	n, err := c.UpdateWhere(ctx, (*testdb.Item)(nil),
		types.NewUpdateSet(types.SetExpr("score", "score + ?", 100)),
		types.NewQueryFilter("grp = ?", "even"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, c.IsTracked(tracked))

	got, err := c.Find(ctx, (*testdb.Item)(nil), 2)
	require.NoError(t, err)
	assert.Equal(t, 102, got.(*testdb.Item).Score)

	n, err = c.DeleteWhere(ctx, (*testdb.Item)(nil), types.NewQueryFilter("score > ?", 100))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, testdb.CountRows(t, db, (*testdb.Item)(nil)))

	_, err = c.DeleteWhere(ctx, (*testdb.Item)(nil), nil)
	assert.Error(t, err)
	_, err = c.UpdateWhere(ctx, (*testdb.Item)(nil), nil, types.NewQueryFilter("1 = 1"))
	assert.Error(t, err)
}

func TestContext_Transactions(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := NewContext(db)
	defer c.Close()

	t.Run("Should discard work on rollback", func(t *testing.T) {
		require.NoError(t, c.Begin(ctx, nil))
		assert.True(t, c.InTransaction())
		assert.Error(t, c.Begin(ctx, nil))

		require.NoError(t, c.Add(&testdb.Item{ID: 1, Name: "a"}))
		_, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Rollback(ctx))
		assert.False(t, c.InTransaction())
		assert.Equal(t, 0, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	})

	t.Run("Should persist work on commit", func(t *testing.T) {
		c.DiscardChanges()
		require.NoError(t, c.Begin(ctx, &sql.TxOptions{}))
		require.NoError(t, c.Add(&testdb.Item{ID: 1, Name: "a"}))
		_, err := c.SaveChanges(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Commit(ctx))
		assert.Equal(t, 1, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	})

	t.Run("Should tolerate commit and rollback without a transaction", func(t *testing.T) {
		assert.NoError(t, c.Commit(ctx))
		assert.NoError(t, c.Rollback(ctx))
	})
}

func TestContext_Close(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := NewContext(db)

	require.NoError(t, c.Begin(ctx, nil))
	require.NoError(t, c.Add(&testdb.Item{ID: 1, Name: "a"}))
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, testdb.CountRows(t, db, (*testdb.Item)(nil)))
	assert.NoError(t, db.PingContext(ctx))

	assert.ErrorIs(t, c.Add(&testdb.Item{ID: 2}), ErrContextClosed)
	_, err = c.Find(ctx, (*testdb.Item)(nil), 1)
	assert.ErrorIs(t, err, ErrContextClosed)
}
