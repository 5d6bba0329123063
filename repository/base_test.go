package repository

import (
	"context"
	"database/sql"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/fcl/database"
	"github.com/tomoncle/fcl/internal/testdb"
	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
)

// countingStore counts flushes and releases of a real store.
type countingStore struct {
	*database.Context
	flushes int
	closes  int
}

func (s *countingStore) SaveChanges(ctx context.Context) (int, error) {
	s.flushes++
	return s.Context.SaveChanges(ctx)
}

func (s *countingStore) Close() error {
	s.closes++
	return s.Context.Close()
}

type fixture struct {
	db    *bun.DB
	store *countingStore
	sess  *session.Session
	repo  Repository[testdb.Item]
}

func newFixture(t *testing.T, seed int) *fixture {
	t.Helper()
	db := testdb.Open(t)
	testdb.SeedItems(t, db, seed)
	store := &countingStore{Context: database.NewContext(db)}
	s := session.New(store)
	t.Cleanup(func() { _ = s.Dispose() })
	return &fixture{db: db, store: store, sess: s, repo: New[testdb.Item](s)}
}

func collect[E any](t *testing.T, seq iter.Seq2[*E, error]) []*E {
	t.Helper()
	var out []*E
	for item, err := range seq {
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func ids(items []*testdb.Item) []int64 {
	out := make([]int64, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestRepository_AddThenGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Should flush each insert without a transaction", func(t *testing.T) {
		f := newFixture(t, 0)
		for id := int64(1); id <= 3; id++ {
			change, err := f.repo.Add(ctx, &testdb.Item{ID: id, Name: "n"})
			require.NoError(t, err)
			assert.False(t, change.Staged)
			assert.Equal(t, types.ChangeInsert, change.Kind)
			assert.Equal(t, 1, change.Affected)
			assert.Equal(t, int(id), testdb.CountRows(t, f.db, (*testdb.Item)(nil)))

			got, err := f.repo.Get(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, id, got.ID)
		}
		assert.Equal(t, 3, f.store.flushes)
	})

	t.Run("Should see staged inserts inside a transaction", func(t *testing.T) {
		f := newFixture(t, 0)
		_, err := f.sess.BeginTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)
		assert.True(t, f.sess.IsTransaction())

		item := &testdb.Item{ID: 7, Name: "seven"}
		change, err := f.repo.Add(ctx, item)
		require.NoError(t, err)
		assert.True(t, change.Staged)
		assert.Zero(t, f.store.flushes)

		got, err := f.repo.Get(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, item, got)

		require.NoError(t, f.sess.CommitTransaction(ctx))
		assert.False(t, f.sess.IsTransaction())
		assert.Equal(t, 1, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should ignore nil items", func(t *testing.T) {
		f := newFixture(t, 0)
		change, err := f.repo.Add(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, change.Affected)
		change, err = f.repo.AddRange(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, change.Affected)
		assert.Zero(t, f.store.flushes)
	})

	t.Run("Should add a batch in one flush", func(t *testing.T) {
		f := newFixture(t, 0)
		change, err := f.repo.AddRange(ctx, []*testdb.Item{{ID: 1, Name: "a"}, nil, {ID: 2, Name: "b"}})
		require.NoError(t, err)
		assert.Equal(t, 2, change.Affected)
		assert.Equal(t, 1, f.store.flushes)
		assert.Equal(t, 2, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})
}

func TestRepository_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("Should attach a detached instance and delete it", func(t *testing.T) {
		f := newFixture(t, 3)
		change, err := f.repo.Remove(ctx, &testdb.Item{ID: 2})
		require.NoError(t, err)
		assert.Equal(t, types.ChangeDelete, change.Kind)
		assert.False(t, change.Staged)

		got, err := f.repo.Get(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 2, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should remove a loaded instance", func(t *testing.T) {
		f := newFixture(t, 3)
		loaded, err := f.repo.Get(ctx, 1)
		require.NoError(t, err)
		_, err = f.repo.Remove(ctx, loaded)
		require.NoError(t, err)
		got, err := f.repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should hide a staged delete inside a transaction", func(t *testing.T) {
		f := newFixture(t, 3)
		_, err := f.sess.BeginTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)

		change, err := f.repo.Remove(ctx, &testdb.Item{ID: 3})
		require.NoError(t, err)
		assert.True(t, change.Staged)
		got, err := f.repo.Get(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, f.sess.RollbackTransaction(ctx))
		got, err = f.repo.Get(ctx, 3)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("Should ignore nil", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.repo.Remove(ctx, nil)
		require.NoError(t, err)
		_, err = f.repo.RemoveWhere(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})
}

func TestRepository_SetBasedWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	n, err := f.repo.Update(ctx,
		types.NewUpdateSet(types.Set("name", "renamed"), types.SetExpr("score", "score * ?", 10)),
		types.NewQueryFilter("grp = ?", "odd"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	count, err := f.repo.Count(ctx, types.NewQueryFilter("name = ?", "renamed"))
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	got, err := f.repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Score)

	change, err := f.repo.RemoveWhere(ctx, types.NewQueryFilter("score >= ?", 10))
	require.NoError(t, err)
	assert.Equal(t, 6, change.Affected)
	assert.Equal(t, 4, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))

	n, err = f.repo.Update(ctx, types.NewUpdateSet(types.Set("name", "x")), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	t.Run("Get", func(t *testing.T) {
		got, err := f.repo.Get(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = f.repo.Get(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Single", func(t *testing.T) {
		_, err := f.repo.Single(ctx, types.NewQueryFilter("score IN (?, ?)", 1, 2))
		assert.ErrorIs(t, err, ErrAmbiguousResult)

		got, err := f.repo.Single(ctx, types.NewQueryFilter("score = ?", 100))
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = f.repo.Single(ctx, types.NewQueryFilter("score = ?", 4))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(4), got.ID)

		got, err = f.repo.Single(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("First", func(t *testing.T) {
		got, err := f.repo.First(ctx, types.NewQueryFilter("grp = ?", "even"), "score DESC")
		require.NoError(t, err)
		assert.Equal(t, int64(6), got.ID)

		got, err = f.repo.First(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Count and Exists", func(t *testing.T) {
		n, err := f.repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		ok, err := f.repo.Exists(ctx, types.NewQueryFilter("grp = ?", "odd"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.repo.Exists(ctx, types.NewQueryFilter("grp = ?", "none"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepository_GetByKeys(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	s := session.New(database.NewContext(db))
	defer s.Dispose()
	repo := New[testdb.Membership](s)

	_, err := repo.Add(ctx, &testdb.Membership{UserID: 1, GroupID: 2, Role: "admin"})
	require.NoError(t, err)

	got, err := repo.GetByKeys(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "admin", got.Role)

	got, err = repo.GetByKeys(ctx, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetByKeys(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_Sequences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)

	all := f.repo.GetAll(ctx)
	assert.Len(t, collect(t, all), 4)

	_, err := f.repo.Add(ctx, &testdb.Item{ID: 5, Name: "late", Group: "odd", Score: 5})
	require.NoError(t, err)
	assert.Len(t, collect(t, all), 5, "iterating again re-runs the query")

	list := collect(t, f.repo.GetList(ctx, types.NewQueryFilter("grp = ?", "odd"), "score DESC"))
	assert.Equal(t, []int64{5, 3, 1}, ids(list))

	var seen int
	for range f.repo.GetAll(ctx) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestRepository_GetQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	base := f.repo.GetQuery(types.NewQueryFilter("grp = ?", "even"))
	top := base.Where(types.NewQueryFilter("score > ?", 4)).OrderBy("score ASC").Take(2)

	items, err := top.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 8}, ids(items))

	none, err := f.repo.GetQuery(nil).Take(0).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Empty(t, collect(t, base.Take(0).All(ctx)))
	first, err := base.Take(0).First(ctx)
	require.NoError(t, err)
	assert.NotNil(t, first, "First takes its own single row window")

	n, err := base.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "builders do not mutate the original query")

	first, err = base.OrderBy("score DESC").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.ID)

	assert.Equal(t, "(grp = ?) AND (score > ?)", top.Spec().Filter.Schema)
}

func TestRepository_GetPagedList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25)

	t.Run("Should return the first ordered page", func(t *testing.T) {
		page, err := f.repo.GetPagedList(ctx, 1, 10, types.NewQueryFilter("score > ?", 0), "id ASC")
		require.NoError(t, err)
		assert.Equal(t, 25, page.TotalCount)
		require.Len(t, page.Items, 10)
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids(page.Items))
		assert.Equal(t, 3, page.PageCount())
		assert.True(t, page.HasNext())
	})

	t.Run("Should return the remainder on the last page", func(t *testing.T) {
		page, err := f.repo.GetPagedList(ctx, 3, 10, types.NewQueryFilter("score > ?", 0), "id ASC")
		require.NoError(t, err)
		assert.Equal(t, 25, page.TotalCount)
		assert.Equal(t, []int64{21, 22, 23, 24, 25}, ids(page.Items))
		assert.False(t, page.HasNext())
	})

	t.Run("Should order before windowing", func(t *testing.T) {
		page, err := f.repo.GetPagedList(ctx, 1, 3, nil, "score DESC")
		require.NoError(t, err)
		assert.Equal(t, []int64{25, 24, 23}, ids(page.Items))
	})

	t.Run("Should never skip below zero", func(t *testing.T) {
		page, err := f.repo.GetPagedList(ctx, 0, 5, nil, "id ASC")
		require.NoError(t, err)
		assert.Equal(t, 1, page.PageIndex)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(page.Items))

		page, err = f.repo.GetPagedList(ctx, -4, 0, nil, "id ASC")
		require.NoError(t, err)
		assert.Equal(t, types.DefaultPageSize, page.PageSize)
		assert.Len(t, page.Items, 10)
	})

	t.Run("Should return an empty window past the end", func(t *testing.T) {
		page, err := f.repo.GetPagedListBy(ctx, types.NewPageRequestWithOrders(9, 10, []string{"id ASC"}))
		require.NoError(t, err)
		assert.Equal(t, 25, page.TotalCount)
		assert.Empty(t, page.Items)
	})

	t.Run("Should count only matching rows", func(t *testing.T) {
		page, err := f.repo.GetPagedListBy(ctx, types.NewPageRequestWithFilter(2, 5, types.NewQueryFilter("grp = ?", "odd")))
		require.NoError(t, err)
		assert.Equal(t, 13, page.TotalCount)
		assert.Len(t, page.Items, 5)
	})
}

func TestRepository_TransactionScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("Should not flush or persist when disposed without commit", func(t *testing.T) {
		f := newFixture(t, 0)
		assert.False(t, f.sess.IsTransaction())
		_, err := f.sess.BeginTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)
		for id := int64(1); id <= 3; id++ {
			_, err := f.repo.Add(ctx, &testdb.Item{ID: id, Name: "n"})
			require.NoError(t, err)
		}
		require.NoError(t, f.sess.Dispose())
		require.NoError(t, f.sess.Dispose())

		assert.Zero(t, f.store.flushes)
		assert.Equal(t, 1, f.store.closes)
		assert.Equal(t, 0, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should flush into a distributed transaction and persist on commit", func(t *testing.T) {
		f := newFixture(t, 0)
		scope, err := f.sess.BeginDistributedTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)

		change, err := f.repo.Add(ctx, &testdb.Item{ID: 1, Name: "d"})
		require.NoError(t, err)
		assert.False(t, change.Staged)
		n, err := f.repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, f.sess.CommitDistributedTransaction(ctx))
		assert.True(t, scope.Completed())
		assert.Equal(t, 1, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should leave the transaction open after a failed commit", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.sess.BeginTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)
		_, err = f.repo.Add(ctx, &testdb.Item{ID: 1, Name: "dup"})
		require.NoError(t, err)

		err = f.sess.CommitTransaction(ctx)
		require.Error(t, err)
		se, ok := database.AsStoreError(err)
		require.True(t, ok)
		assert.Equal(t, database.DuplicateKeyErr, se.Kind)
		assert.True(t, f.sess.IsTransaction())
		require.NoError(t, f.sess.RollbackTransaction(ctx))
	})

	t.Run("Should surface store errors on auto-commit", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.repo.Add(ctx, &testdb.Item{ID: 1, Name: "dup"})
		_, ok := database.AsStoreError(err)
		assert.True(t, ok)
		assert.False(t, f.sess.IsTransaction())
	})

	t.Run("Should forget a failed auto-commit", func(t *testing.T) {
		f := newFixture(t, 3)
		_, err := f.repo.Add(ctx, &testdb.Item{ID: 1, Name: "phantom"})
		se, ok := database.AsStoreError(err)
		require.True(t, ok)
		assert.Equal(t, database.DuplicateKeyErr, se.Kind)

		got, err := f.repo.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "item-01", got.Name)

		_, err = f.repo.Add(ctx, &testdb.Item{ID: 50, Name: "valid"})
		require.NoError(t, err)
		assert.Equal(t, 4, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should forget a failed remove on auto-commit", func(t *testing.T) {
		f := newFixture(t, 2)
		_, err := f.repo.Add(ctx, &testdb.Item{ID: 2, Name: "dup"})
		require.Error(t, err)

		_, err = f.repo.Remove(ctx, &testdb.Item{ID: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, testdb.CountRows(t, f.db, (*testdb.Item)(nil)))
	})

	t.Run("Should forget a failed flush in a distributed transaction", func(t *testing.T) {
		f := newFixture(t, 3)
		_, err := f.sess.BeginDistributedTransaction(ctx, sql.LevelDefault)
		require.NoError(t, err)

		_, err = f.repo.Add(ctx, &testdb.Item{ID: 10, Name: "kept"})
		require.NoError(t, err)
		_, err = f.repo.AddRange(ctx, []*testdb.Item{{ID: 11, Name: "partial"}, {ID: 1, Name: "phantom"}})
		require.Error(t, err)
		assert.True(t, f.sess.IsDistributed())

		got, err := f.repo.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "item-01", got.Name)
		got, err = f.repo.Get(ctx, 11)
		require.NoError(t, err)
		assert.Nil(t, got, "the failed batch left no partial write")
		got, err = f.repo.Get(ctx, 10)
		require.NoError(t, err)
		assert.NotNil(t, got)

		_, err = f.repo.Add(ctx, &testdb.Item{ID: 12, Name: "after"})
		require.NoError(t, err)
		require.NoError(t, f.sess.CommitDistributedTransaction(ctx))

		var rows []int64
		require.NoError(t, f.db.NewSelect().Model((*testdb.Item)(nil)).Column("id").Order("id ASC").Scan(ctx, &rows))
		assert.Equal(t, []int64{1, 2, 3, 10, 12}, rows)
	})
}

func TestRepository_Dispose(t *testing.T) {
	ctx := context.Background()

	t.Run("Should leave a shared session open", func(t *testing.T) {
		f := newFixture(t, 1)
		require.NoError(t, f.repo.Dispose())
		assert.False(t, f.sess.IsDisposed())
		_, err := f.repo.Get(ctx, 1)
		assert.NoError(t, err)
	})

	t.Run("Should dispose an owned session", func(t *testing.T) {
		f := newFixture(t, 1)
		repo := New[testdb.Item](f.sess, OwnsSession())
		require.NoError(t, repo.Dispose())
		require.NoError(t, repo.Dispose())
		assert.True(t, f.sess.IsDisposed())
		assert.Equal(t, 1, f.store.closes)

		_, err := f.repo.Get(ctx, 1)
		assert.ErrorIs(t, err, session.ErrSessionClosed)
		for _, err := range f.repo.GetAll(ctx) {
			assert.ErrorIs(t, err, session.ErrInvalidState)
		}
	})
}
