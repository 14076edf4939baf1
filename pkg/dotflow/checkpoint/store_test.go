package checkpoint_test

import (
	"testing"

	"github.com/randalmurphal/dotflow/pkg/dotflow/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		data := []byte(`{"run_id": "run-1"}`)
		err := store.Save("run-1", "plan", data)
		require.NoError(t, err)

		loaded, err := store.Load("run-1", "plan")
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load("run-nonexistent", "node-nonexistent")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("run-1", "plan", []byte("first")))
		require.NoError(t, store.Save("run-1", "plan", []byte("second")))

		loaded, err := store.Load("run-1", "plan")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), loaded)
	})

	t.Run(name+"/Overwrite_MovesToEnd", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		// A retry revisit re-saves an earlier node; it must become the
		// newest checkpoint so resumption picks it up.
		require.NoError(t, store.Save("run-1", "plan", []byte("a")))
		require.NoError(t, store.Save("run-1", "build", []byte("b")))
		require.NoError(t, store.Save("run-1", "plan", []byte("a2")))

		infos, err := store.List("run-1")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "plan", infos[len(infos)-1].NodeID)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		infos, err := store.List("run-nonexistent")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_Ordered", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("run-1", "plan", []byte("a")))
		require.NoError(t, store.Save("run-1", "build", []byte("bb")))
		require.NoError(t, store.Save("run-1", "deploy", []byte("ccc")))

		infos, err := store.List("run-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		assert.Equal(t, []string{"plan", "build", "deploy"},
			[]string{infos[0].NodeID, infos[1].NodeID, infos[2].NodeID})
		assert.Less(t, infos[0].Sequence, infos[1].Sequence)
		assert.Less(t, infos[1].Sequence, infos[2].Sequence)
		assert.Equal(t, int64(1), infos[0].Size)
		assert.Equal(t, int64(2), infos[1].Size)
		assert.Equal(t, int64(3), infos[2].Size)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("run-1", "plan", []byte("data")))
		require.NoError(t, store.Delete("run-1", "plan"))

		_, err := store.Load("run-1", "plan")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Delete_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.Delete("run-nonexistent", "node-nonexistent"))
	})

	t.Run(name+"/DeleteRun", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("run-1", "plan", []byte("a")))
		require.NoError(t, store.Save("run-1", "build", []byte("b")))
		require.NoError(t, store.Save("run-2", "plan", []byte("other")))

		require.NoError(t, store.DeleteRun("run-1"))

		infos, err := store.List("run-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		// run-2 is untouched
		infos, err = store.List("run-2")
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run(name+"/DeleteRun_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.DeleteRun("run-nonexistent"))
	})

	t.Run(name+"/MultipleRuns", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save("run-1", "plan", []byte("run1-plan")))
		require.NoError(t, store.Save("run-1", "build", []byte("run1-build")))
		require.NoError(t, store.Save("run-2", "plan", []byte("run2-plan")))

		data, err := store.Load("run-1", "plan")
		require.NoError(t, err)
		assert.Equal(t, []byte("run1-plan"), data)

		data, err = store.Load("run-2", "plan")
		require.NoError(t, err)
		assert.Equal(t, []byte("run2-plan"), data)

		infos1, _ := store.List("run-1")
		infos2, _ := store.List("run-2")
		assert.Len(t, infos1, 2)
		assert.Len(t, infos2, 1)
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		original := []byte("original data")
		require.NoError(t, store.Save("run-1", "plan", original))

		// Mutating the caller's slice after save must not leak in
		original[0] = 'X'

		loaded, err := store.Load("run-1", "plan")
		require.NoError(t, err)
		assert.Equal(t, []byte("original data"), loaded)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		err := store.Save("run-1", "plan", []byte("data"))
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Load("run-1", "plan")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.List("run-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	}
	storeContractTest(t, "MemoryStore", factory)
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	}
	storeContractTest(t, "SQLiteStore", factory)
}

func TestMemoryStore_Len(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Save("run-1", "plan", []byte("a")))
	require.NoError(t, store.Save("run-1", "build", []byte("b")))
	require.NoError(t, store.Save("run-2", "plan", []byte("c")))

	assert.Equal(t, 3, store.Len())

	require.NoError(t, store.DeleteRun("run-1"))
	assert.Equal(t, 1, store.Len())
}
