package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollamad/pkg/types"
)

func storeImpls(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	memSQL, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlStore.Close()
		_ = memSQL.Close()
	})
	return map[string]Store{
		"memory":     NewMemoryStore(),
		"sqlite":     sqlStore,
		"sqlite-mem": memSQL,
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"b", "a", "c"} {
				require.NoError(t, s.Upsert(ctx, types.Model{ID: id, Name: id, Family: types.FamilyLlama, SizeBytes: 10, CreatedAt: created}))
			}

			got, ok, err := s.Get(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, types.FamilyLlama, got.Family)
			assert.Equal(t, int64(10), got.SizeBytes)
			assert.True(t, got.CreatedAt.Equal(created))

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			// update keeps insertion position
			require.NoError(t, s.Upsert(ctx, types.Model{ID: "b", Name: "B renamed", SizeBytes: 20}))
			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
			assert.Equal(t, "B renamed", list[0].Name)
			assert.Equal(t, int64(20), list[0].SizeBytes)

			removed, err := s.Delete(ctx, "a")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Delete(ctx, "a")
			require.NoError(t, err)
			assert.False(t, removed)

			list, err = s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func TestSQLStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, types.Model{ID: "m", Name: "m", Family: types.FamilyPhi}))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	got, ok, err := s2.Get(ctx, "m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.FamilyPhi, got.Family)
}
