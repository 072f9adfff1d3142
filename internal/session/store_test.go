package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test", ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func newTestSQLiteStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func allStores(t *testing.T) map[string]Store {
	t.Helper()
	redisStore, _ := newTestRedisStore(t, time.Hour)
	return map[string]Store{
		TypeMemory: NewMemoryStore(time.Hour),
		TypeSQLite: newTestSQLiteStore(t, time.Hour),
		TypeRedis:  redisStore,
	}
}

func sampleResult(marker byte) *Result {
	return &Result{
		PNG:          []byte{0x89, 'P', 'N', 'G', 0x00, marker},
		Width:        640,
		Height:       480,
		FacesSwapped: 2,
		SourceFaces:  1,
		TargetFaces:  2,
		CreatedAt:    time.Unix(1700000000, 0),
	}
}

func TestStores_GetMissingReturnsNil(t *testing.T) {
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			result, err := store.Get("nobody")
			require.NoError(t, err)
			require.Nil(t, result)
		})
	}
}

func TestStores_PutGetRoundTrip(t *testing.T) {
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleResult(1)
			want.CreatedAt = time.Now().Truncate(time.Second)
			require.NoError(t, store.Put("s1", want))

			got, err := store.Get("s1")
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, want.PNG, got.PNG)
			require.Equal(t, want.Width, got.Width)
			require.Equal(t, want.Height, got.Height)
			require.Equal(t, want.FacesSwapped, got.FacesSwapped)
			require.Equal(t, want.SourceFaces, got.SourceFaces)
			require.Equal(t, want.TargetFaces, got.TargetFaces)
			require.True(t, want.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestStores_PutReplaces(t *testing.T) {
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			first := sampleResult(1)
			first.CreatedAt = time.Now()
			second := sampleResult(2)
			second.CreatedAt = time.Now()
			second.FacesSwapped = 5

			require.NoError(t, store.Put("s1", first))
			require.NoError(t, store.Put("s1", second))

			got, err := store.Get("s1")
			require.NoError(t, err)
			require.Equal(t, second.PNG, got.PNG)
			require.Equal(t, 5, got.FacesSwapped)
		})
	}
}

func TestStores_ClearIsIdempotent(t *testing.T) {
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			result := sampleResult(1)
			result.CreatedAt = time.Now()
			require.NoError(t, store.Put("s1", result))

			require.NoError(t, store.Clear("s1"))
			require.NoError(t, store.Clear("s1"))

			got, err := store.Get("s1")
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestStores_SessionsAreIsolated(t *testing.T) {
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			a := sampleResult('a')
			a.CreatedAt = time.Now()
			b := sampleResult('b')
			b.CreatedAt = time.Now()
			require.NoError(t, store.Put("a", a))
			require.NoError(t, store.Put("b", b))
			require.NoError(t, store.Clear("a"))

			got, err := store.Get("b")
			require.NoError(t, err)
			require.Equal(t, b.PNG, got.PNG)
		})
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			_ = store.Put(id, sampleResult(byte(i)))
			_, _ = store.Get(id)
			if i%5 == 0 {
				_ = store.Clear(id)
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put("s1", &Result{PNG: []byte{1}}))
	now = now.Add(2 * time.Minute)

	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.Put("s1", &Result{Width: 1}))

	got, err := store.Get("s1")
	require.NoError(t, err)
	got.Width = 99

	again, err := store.Get("s1")
	require.NoError(t, err)
	require.Equal(t, 1, again.Width)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	store := newTestSQLiteStore(t, time.Minute)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put("s1", &Result{PNG: []byte{1}}))
	got, err := store.Get("s1")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = store.Get("s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	require.NoError(t, store.Put("s1", sampleResult(1)))
	require.True(t, mr.Exists("test:result:s1"))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	mr.HSet("test:result:s1", "png", "x", "width", "wide")

	_, err := store.Get("s1")
	require.Error(t, err)
}

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default is memory", Config{}, false},
		{"memory", Config{Type: TypeMemory}, false},
		{"sqlite in memory", Config{Type: TypeSQLite}, false},
		{"sqlite file", Config{Type: TypeSQLite, ConnectionString: t.TempDir() + "/results.db"}, false},
		{"redis", Config{Type: TypeRedis, ConnectionString: "redis://" + mr.Addr()}, false},
		{"redis bad url", Config{Type: TypeRedis, ConnectionString: "::"}, true},
		{"unknown", Config{Type: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Errorf("Expected distinct ids, got %s twice", a)
	}
	if !ValidID(a) {
		t.Errorf("Expected %s to be valid", a)
	}
	for _, id := range []string{"", "abc", "../../etc/passwd"} {
		if ValidID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}
