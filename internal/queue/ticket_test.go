package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mehdi-it48/medisync-lite/internal/rowstore"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf(t *testing.T) {
	day := DayOf(time.Date(2024, 3, 13, 23, 59, 59, 0, clinicZone), clinicZone)

	assert.Equal(t, "2024-03-13", day.Key)
	assert.True(t, day.Start.Equal(time.Date(2024, 3, 13, 0, 0, 0, 0, clinicZone)))
	assert.True(t, day.End.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, clinicZone)))

	utc := DayOf(time.Date(2024, 3, 13, 23, 30, 0, 0, clinicZone), time.UTC)
	assert.Equal(t, "2024-03-13", utc.Key)
	assert.Equal(t, "2024-03-14", DayOf(time.Date(2024, 3, 13, 23, 30, 0, 0, time.UTC), clinicZone).Key)
}

func TestStoreScanAllocator_SkipsHardDeletedTickets(t *testing.T) {
	store := rowstore.NewMemoryStore()
	allocator := NewStoreScanAllocator(store)
	ctx := context.Background()
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	var ids []string
	for want := 1; want <= 2; want++ {
		n, err := allocator.Next(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, want, n)

		row, err := store.Insert(ctx, types.TableQueue, types.Row{"numero_ordre": n, "created_at": day.Start.Add(time.Hour)})
		require.NoError(t, err)
		ids = append(ids, row.ID())
	}

	require.NoError(t, store.Delete(ctx, types.TableQueue, ids[1]))

	n, err := allocator.Next(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreScanAllocator_PicksUpRowsWrittenElsewhere(t *testing.T) {
	store := rowstore.NewMemoryStore()
	allocator := NewStoreScanAllocator(store)
	ctx := context.Background()
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	_, err := store.Insert(ctx, types.TableQueue, types.Row{"numero_ordre": 6, "created_at": day.Start.Add(time.Hour)})
	require.NoError(t, err)
	_, err = store.Insert(ctx, types.TableQueue, types.Row{"numero_ordre": 40, "created_at": day.End})
	require.NoError(t, err)

	n, err := allocator.Next(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestStoreScanAllocator_MarkOnlyMovesForward(t *testing.T) {
	store := rowstore.NewMemoryStore()
	allocator := NewStoreScanAllocator(store)
	ctx := context.Background()
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	require.NoError(t, allocator.Raise(ctx, day, 5))
	// A slower caller reporting an older ticket leaves the mark alone
	require.NoError(t, allocator.Raise(ctx, day, 3))

	highest, err := allocator.Highest(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 5, highest)

	n, err := allocator.Next(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestStoreScanAllocator_ConcurrentCallersClaimDistinctTickets(t *testing.T) {
	store := rowstore.NewMemoryStore()
	allocator := NewStoreScanAllocator(store)
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	const callers = 20
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := allocator.Next(context.Background(), day)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(got)
	for i, n := range got {
		assert.Equal(t, i+1, n)
	}
}

func setupRedisAllocator(t *testing.T) (*RedisAllocator, *rowstore.MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := rowstore.NewMemoryStore()
	return NewRedisAllocator(client, store), store, mr
}

func TestRedisAllocator_SequentialAndDaily(t *testing.T) {
	allocator, _, mr := setupRedisAllocator(t)
	ctx := context.Background()
	d1 := DayOf(morningOf(2024, 3, 13), clinicZone)
	d2 := DayOf(morningOf(2024, 3, 14), clinicZone)

	for want := 1; want <= 3; want++ {
		n, err := allocator.Next(ctx, d1)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := allocator.Next(ctx, d2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, mr.Exists("queue:ticket:2024-03-13"))
	assert.Equal(t, redisTicketTTL, mr.TTL("queue:ticket:2024-03-13"))
}

func TestRedisAllocator_SeedsFromStore(t *testing.T) {
	allocator, store, _ := setupRedisAllocator(t)
	ctx := context.Background()
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	_, err := store.Insert(ctx, types.TableQueue, types.Row{"numero_ordre": 4, "created_at": day.Start.Add(time.Hour)})
	require.NoError(t, err)

	n, err := allocator.Next(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRedisAllocator_ConcurrentCallersGetDistinctTickets(t *testing.T) {
	allocator, _, _ := setupRedisAllocator(t)
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	const callers = 25
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := allocator.Next(context.Background(), day)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(got)
	for i, n := range got {
		assert.Equal(t, i+1, n)
	}
}

func TestRedisAllocator_RecordsHighWaterMark(t *testing.T) {
	allocator, store, _ := setupRedisAllocator(t)
	ctx := context.Background()
	day := DayOf(morningOf(2024, 3, 13), clinicZone)

	for i := 0; i < 3; i++ {
		_, err := allocator.Next(ctx, day)
		require.NoError(t, err)
	}

	rows, err := store.List(ctx, types.TableQueueDays, types.NewQuery().Eq("id", day.Key))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0]["last_numero"])
}

func TestRedisAllocator_RedisFailureIsStoreError(t *testing.T) {
	allocator, _, mr := setupRedisAllocator(t)
	mr.Close()

	_, err := allocator.Next(context.Background(), DayOf(morningOf(2024, 3, 13), clinicZone))
	assert.True(t, types.IsStoreError(err))
}

func TestEngine_WithRedisAllocatorNeverReusesRemovedTicket(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	engine, store, _ := setupTestEngine(t)
	engine.allocator = NewRedisAllocator(client, store)
	ctx := context.Background()
	at := morningOf(2024, 3, 13)

	enqueue(t, engine, at, "patient-1")
	second := enqueue(t, engine, at, "patient-2")
	require.NoError(t, engine.Remove(ctx, second.ID))

	third := enqueue(t, engine, at, "patient-3")
	assert.Equal(t, 3, third.NumeroOrdre)
}

func TestEngine_WithRedisAllocatorSurvivesLostCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	engine, store, _ := setupTestEngine(t)
	engine.allocator = NewRedisAllocator(client, store)
	ctx := context.Background()
	at := morningOf(2024, 3, 13)

	enqueue(t, engine, at, "patient-1")
	second := enqueue(t, engine, at, "patient-2")
	require.NoError(t, engine.Remove(ctx, second.ID))

	// Redis restarted without persistence
	mr.FlushAll()

	third := enqueue(t, engine, at, "patient-3")
	assert.Equal(t, 3, third.NumeroOrdre)
}
