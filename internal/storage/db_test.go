package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// testDB runs the shared suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("key1"), []byte("value1")))
		val, err := db.Get([]byte("key1"))
		require.NoError(t, err)
		require.Equal(t, []byte("value1"), val)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Has", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("exists"), []byte("yes")))
		ok, err := db.Has([]byte("exists"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = db.Has([]byte("missing"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("ow"), []byte("first")))
		require.NoError(t, db.Put([]byte("ow"), []byte("second")))
		val, err := db.Get([]byte("ow"))
		require.NoError(t, err)
		require.Equal(t, []byte("second"), val)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("del"), []byte("value")))
		require.NoError(t, db.Delete([]byte("del")))
		_, err := db.Get([]byte("del"))
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, db.Delete([]byte("never-existed")))
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		v := []byte("orig")
		require.NoError(t, db.Put([]byte("copy"), v))
		v[0] = 'X'
		got, err := db.Get([]byte("copy"))
		require.NoError(t, err)
		require.Equal(t, []byte("orig"), got)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("empty"), []byte{}))
		val, err := db.Get([]byte("empty"))
		require.NoError(t, err)
		require.Empty(t, val)
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		for _, k := range []string{"prefix/c", "prefix/a", "prefix/b", "other/x"} {
			require.NoError(t, db.Put([]byte(k), []byte(k)))
		}
		var keys []string
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			require.Equal(t, key, value)
			keys = append(keys, string(key))
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"prefix/a", "prefix/b", "prefix/c"}, keys)
	})

	t.Run("ForEachStop", func(t *testing.T) {
		stop := errors.New("stop")
		n := 0
		err := db.ForEach([]byte("prefix/"), func(_, _ []byte) error {
			n++
			return stop
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, 1, n)
	})

	t.Run("Batch", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("batch/old"), []byte("x")))
		b := NewBatch(db)
		for i := 0; i < 5; i++ {
			require.NoError(t, b.Put([]byte(fmt.Sprintf("batch/%d", i)), []byte{byte(i)}))
		}
		require.NoError(t, b.Delete([]byte("batch/old")))

		ok, err := db.Has([]byte("batch/0"))
		require.NoError(t, err)
		require.False(t, ok, "writes are deferred until Commit")

		require.NoError(t, b.Commit())
		got, err := db.Get([]byte("batch/4"))
		require.NoError(t, err)
		require.Equal(t, []byte{4}, got)
		ok, err = db.Has([]byte("batch/old"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("DeletePrefix", func(t *testing.T) {
		require.NoError(t, DeletePrefix(db, []byte("batch/")))
		n := 0
		require.NoError(t, db.ForEach([]byte("batch/"), func(_, _ []byte) error {
			n++
			return nil
		}))
		require.Zero(t, n)
		ok, err := db.Has([]byte("prefix/a"))
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	testDB(t, db)
}

func TestBufferedBatch(t *testing.T) {
	// Hiding NewBatch forces the buffered fallback.
	db := struct{ DB }{NewMemory()}
	b := NewBatch(db)
	_, buffered := b.(*bufferedBatch)
	require.True(t, buffered)
	require.NoError(t, b.Put([]byte("k"), nil))
	require.NoError(t, b.Commit())
	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok, "a nil value is stored as empty, not deleted")
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("persist"), []byte("data")))
	require.NoError(t, db1.Close())

	db2, err := NewBadger(dir)
	require.NoError(t, err)
	defer db2.Close()
	val, err := db2.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("data"), val)
}

func TestBadgerDB_Locked(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewBadger(dir)
	require.Error(t, err)
}
