package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scholar/pkg/config"
)

func TestLocalStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "lake"))
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "bronze/grades_20240301_101500.parquet", strings.NewReader("first")))

	err = store.Put(ctx, "bronze/grades_20240301_101500.parquet", strings.NewReader("second"))
	require.ErrorIs(t, err, ErrExist)

	rc, err := store.Get(ctx, "bronze/grades_20240301_101500.parquet")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))
}

func TestLocalStoreGetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "silver/student_20240301_101500.parquet")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{
		"bronze/students_db1_20240302_000000.parquet",
		"bronze/students_db1_20240301_000000.parquet",
		"bronze/students_db2_20240301_000000.parquet",
		"silver/student_20240301_000000.parquet",
	} {
		require.NoError(t, store.Put(ctx, key, strings.NewReader("x")))
	}

	keys, err := store.List(ctx, "bronze/students_db1_")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bronze/students_db1_20240301_000000.parquet",
		"bronze/students_db1_20240302_000000.parquet",
	}, keys)

	keys, err = store.List(ctx, "gold/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestJoinAndStripKey(t *testing.T) {
	assert.Equal(t, "bronze/a.parquet", joinKey("", "bronze/a.parquet"))
	assert.Equal(t, "lake/bronze/a.parquet", joinKey("/lake/", "bronze/a.parquet"))
	assert.Equal(t, "bronze/a.parquet", stripKey("lake/", "lake/bronze/a.parquet"))
}

func TestOpenFailureReturnsNilStore(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	store, err := Open(context.Background(), config.StorageConfig{Backend: "local", Root: filepath.Join(blocker, "lake")})
	require.Error(t, err)
	assert.True(t, store == nil, "store must be an untyped nil")
}
