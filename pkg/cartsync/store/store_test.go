package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		{
			LineID:    "P1:M:Red:abcd1234",
			ProductID: "P1",
			Name:      "Linen Shirt",
			Slug:      "linen-shirt",
			Image:     "https://img.example.com/p1.jpg",
			Price:     4900,
			SalePrice: domain.Int64(3900),
			Size:      "M",
			Color:     "Red",
			Quantity:  2,
			Stock:     5,
		},
		{
			LineID:    "P2:::0000ffff",
			ProductID: "P2",
			Name:      "Tote Bag",
			Slug:      "tote-bag",
			Price:     1500,
			Quantity:  1,
			Stock:     10,
		},
	}
}

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "device-1", time.Hour, logger.Discard()), mr
}

// ---------------------------------------------------------------------------
// Backend contract, run against every implementation
// ---------------------------------------------------------------------------

func backends(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := setupRedisStore(t)
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "cart.json"), logger.Discard()),
		"redis":  rs,
		"memory": NewMemoryStore(logger.Discard()),
	}
}

func TestStore_LoadWhenNothingSaved(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleSnapshot()

			require.NoError(t, s.Save(ctx, want))
			got, err := s.Load(ctx)

			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, sampleSnapshot()))
			require.NoError(t, s.Save(ctx, domain.Snapshot{}))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

// ---------------------------------------------------------------------------
// Corrupt payloads
// ---------------------------------------------------------------------------

func TestFileStore_CorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	got, err := NewFileStore(path, logger.Discard()).Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cart.json")
	s := NewFileStore(path, logger.Discard())

	require.NoError(t, s.Save(context.Background(), sampleSnapshot()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStore_UnreadablePathIsAnError(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes ReadFile fail with something
	// other than "not exist".
	s := NewFileStore(dir, logger.Discard())

	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_UnknownVersionLoadsEmpty(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, mr.Set(s.Key(), `{"version":99,"lines":[{"product_id":"P1"}]}`))

	got, err := s.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_KeyAndTTL(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, s.Save(context.Background(), sampleSnapshot()))

	assert.Equal(t, "cartsync:snapshot:device-1", s.Key())
	assert.True(t, mr.Exists(s.Key()))
	assert.Equal(t, time.Hour, mr.TTL(s.Key()))
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.Close()

	_, err := s.Load(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.Save(context.Background(), sampleSnapshot()))
}

func TestMemoryStore_RawAndCount(t *testing.T) {
	s := NewMemoryStore(logger.Discard())
	s.SetRaw([]byte(`garbage`))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Save(context.Background(), nil))
	assert.Equal(t, 1, s.Saves())
}
