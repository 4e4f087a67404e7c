package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()

	file, err := OpenFile(t.TempDir())
	require.NoError(t, err)

	lite, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })

	return map[string]KV{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": lite,
	}
}

func TestKV_GetMissing(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := kv.Get(context.Background(), "absent")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, v)
		})
	}
}

func TestKV_SetOverwrites(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Set(ctx, "ns/k", []byte(`"old"`)))
			require.NoError(t, kv.Set(ctx, "ns/k", []byte(`"new"`)))

			v, ok, err := kv.Get(ctx, "ns/k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `"new"`, string(v))
		})
	}
}

func TestFile_RejectsEscapingKeys(t *testing.T) {
	f, err := OpenFile(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../x", "/etc/passwd", "."} {
		err := f.Set(context.Background(), key, []byte("x"))
		assert.Error(t, err, key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	_, err = Open(ctx, "file", "")
	assert.ErrorIs(t, err, ErrNoLocation)

	_, err = Open(ctx, "redis", "localhost")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	kv, err = Open(ctx, "SQLite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, kv.Close())
}

func TestValidBackend(t *testing.T) {
	assert.True(t, ValidBackend("file"))
	assert.True(t, ValidBackend(" Postgres "))
	assert.False(t, ValidBackend("mongo"))
}
