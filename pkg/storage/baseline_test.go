package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends opens every KV implementation in a fresh temp directory.
func backends(t *testing.T) map[string]storage.KV {
	t.Helper()
	out := make(map[string]storage.KV)
	for _, name := range []string{storage.BackendSQLite, storage.BackendBolt, storage.BackendFile} {
		kv, err := storage.Open(name, storage.DefaultPath(name, t.TempDir()))
		require.NoError(t, err, name)
		t.Cleanup(func() { kv.Close() })
		out[name] = kv
	}
	return out
}

func TestBaselines_AbsentOnFirstRun(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := storage.NewBaselines(kv)
			for _, w := range model.Windows {
				_, ok, err := b.GetBaseline(context.Background(), w)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		})
	}
}

func TestBaselines_SetThenGet(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := storage.NewBaselines(kv)
			ctx := context.Background()

			require.NoError(t, b.SetBaseline(ctx, model.WindowDaily, 5_000_000_000))

			got, ok, err := b.GetBaseline(ctx, model.WindowDaily)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(5_000_000_000), got)

			// Other windows are independent
			_, ok, err = b.GetBaseline(ctx, model.WindowHourly)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBaselines_LastWriterWins(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := storage.NewBaselines(kv)
			ctx := context.Background()

			require.NoError(t, b.SetBaseline(ctx, model.WindowWeekly, 900))
			require.NoError(t, b.SetBaseline(ctx, model.WindowWeekly, 100))

			got, ok, err := b.GetBaseline(ctx, model.WindowWeekly)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(100), got)
		})
	}
}

func TestBaselines_List(t *testing.T) {
	kv, err := storage.NewBolt(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	b := storage.NewBaselines(kv)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.SetBaseline(ctx, model.WindowHourly, 7))

	list, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, model.Baseline{Window: model.WindowHourly, Value: 7, Set: true}, list[0])
	assert.False(t, list[1].Set)
	assert.False(t, list[2].Set)
}

func TestBaselines_CorruptValue(t *testing.T) {
	dir := t.TempDir()
	kv, err := storage.NewFileKV(dir)
	require.NoError(t, err)
	b := storage.NewBaselines(kv)

	require.NoError(t, kv.Put(context.Background(), model.WindowHourly.BaselineKey(), []byte("not-a-number")))

	_, _, err = b.GetBaseline(context.Background(), model.WindowHourly)
	require.Error(t, err)

	var storeErr *storage.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "decode baseline", storeErr.Op)
	assert.Equal(t, "baseline:hourly", storeErr.Key)
}

func TestBaselines_WriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	kv, err := storage.NewFileKV(dir)
	require.NoError(t, err)
	b := storage.NewBaselines(kv)

	require.NoError(t, os.RemoveAll(dir))

	err = b.SetBaseline(context.Background(), model.WindowDaily, 1)
	var storeErr *storage.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "set baseline", storeErr.Op)
}

func TestFileKV_TrimmedValue(t *testing.T) {
	dir := t.TempDir()
	kv, err := storage.NewFileKV(dir)
	require.NoError(t, err)

	// Hand-edited files usually end with a newline
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baseline_daily"), []byte("123\n"), 0o644))

	got, ok, err := storage.NewBaselines(kv).GetBaseline(context.Background(), model.WindowDaily)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(123), got)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := storage.Open("redis", t.TempDir())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}
