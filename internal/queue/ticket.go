package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Day is one queue business day, the half-open window [Start, End) between
// two local midnights
type Day struct {
	Start time.Time
	End   time.Time
	Key   string
}

// DayOf returns the queue day containing at in loc
func DayOf(at time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	local := at.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Day{
		Start: start,
		End:   start.AddDate(0, 0, 1),
		Key:   start.Format(types.DateLayout),
	}
}

// TicketAllocator hands out the next numero_ordre for a queue day
type TicketAllocator interface {
	Next(ctx context.Context, day Day) (int, error)
}

// StoreScanAllocator reads the day's highest ticket and adds one. The
// highest ticket is the larger of the queue rows' maximum and the day's
// high-water mark in queue_days, which outlives hard-deleted rows.
//
// A ticket is claimed by moving the mark with a guarded update from the
// value read to the new ticket, so the mark only grows and two callers
// cannot claim the same number. A caller that loses the move reads again.
type StoreScanAllocator struct {
	store interfaces.RowStore
}

// NewStoreScanAllocator creates an allocator reading from store
func NewStoreScanAllocator(store interfaces.RowStore) *StoreScanAllocator {
	return &StoreScanAllocator{store: store}
}

// Next returns the highest ticket of day plus one (1 for an empty day) and
// records it as the day's high-water mark
func (a *StoreScanAllocator) Next(ctx context.Context, day Day) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, types.NewStoreError("allocate", types.TableQueueDays, err)
		}
		scanned, err := a.scan(ctx, day)
		if err != nil {
			return 0, err
		}
		mark, found, err := a.mark(ctx, day)
		if err != nil {
			return 0, err
		}

		next := max(scanned, mark) + 1
		claimed, err := a.claim(ctx, day, mark, found, next)
		if err != nil {
			return 0, err
		}
		if claimed {
			return next, nil
		}
	}
}

// Highest returns the largest ticket issued on day, 0 when none
func (a *StoreScanAllocator) Highest(ctx context.Context, day Day) (int, error) {
	scanned, err := a.scan(ctx, day)
	if err != nil {
		return 0, err
	}
	mark, _, err := a.mark(ctx, day)
	if err != nil {
		return 0, err
	}
	return max(scanned, mark), nil
}

// Raise lifts the day's high-water mark to at least numero. A mark already
// at or above numero is left alone.
func (a *StoreScanAllocator) Raise(ctx context.Context, day Day, numero int) error {
	for {
		if err := ctx.Err(); err != nil {
			return types.NewStoreError("raise_mark", types.TableQueueDays, err)
		}
		mark, found, err := a.mark(ctx, day)
		if err != nil {
			return err
		}
		if found && mark >= numero {
			return nil
		}
		claimed, err := a.claim(ctx, day, mark, found, numero)
		if err != nil || claimed {
			return err
		}
	}
}

func (a *StoreScanAllocator) scan(ctx context.Context, day Day) (int, error) {
	q := types.NewQuery().
		Gte("created_at", day.Start).
		Lt("created_at", day.End).
		OrderDesc("numero_ordre").
		Take(1)

	rows, err := a.store.List(ctx, types.TableQueue, q)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return intValue(rows[0]["numero_ordre"]), nil
}

func (a *StoreScanAllocator) mark(ctx context.Context, day Day) (int, bool, error) {
	rows, err := a.store.List(ctx, types.TableQueueDays, types.NewQuery().Eq("id", day.Key).Take(1))
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return intValue(rows[0]["last_numero"]), true, nil
}

// claim moves the day's mark from seen to numero. It reports false when
// another caller moved the mark first.
func (a *StoreScanAllocator) claim(ctx context.Context, day Day, seen int, exists bool, numero int) (bool, error) {
	var err error
	if exists {
		_, err = a.store.UpdateIf(ctx, types.TableQueueDays, day.Key,
			types.NewQuery().Eq("last_numero", seen), types.Row{"last_numero": numero})
	} else {
		_, err = a.store.Insert(ctx, types.TableQueueDays, types.Row{"id": day.Key, "last_numero": numero})
	}
	if types.IsConflict(err) {
		return false, nil
	}
	return err == nil, err
}

const redisTicketTTL = 48 * time.Hour

// RedisAllocator issues tickets with an atomic INCR on a per-day counter.
// The counter is seeded from the store the first time a day is seen so a
// restart mid-day continues after the existing tickets. Every ticket is also
// written to the day's high-water mark in queue_days.
type RedisAllocator struct {
	client redis.UniversalClient
	seed   *StoreScanAllocator
	prefix string
}

// NewRedisAllocator creates an allocator on client seeded from store
func NewRedisAllocator(client redis.UniversalClient, store interfaces.RowStore) *RedisAllocator {
	return &RedisAllocator{
		client: client,
		seed:   NewStoreScanAllocator(store),
		prefix: "queue:ticket:",
	}
}

// Next increments and returns the day's counter
func (a *RedisAllocator) Next(ctx context.Context, day Day) (int, error) {
	key := a.prefix + day.Key

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, types.NewStoreError("exists", key, err)
	}
	if exists == 0 {
		highest, err := a.seed.Highest(ctx, day)
		if err != nil {
			return 0, err
		}
		// Losing the SETNX race is fine: the winner seeded the same maximum
		if err := a.client.SetNX(ctx, key, highest, redisTicketTTL).Err(); err != nil {
			return 0, types.NewStoreError("setnx", key, err)
		}
	}

	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, types.NewStoreError("incr", key, err)
	}

	// The mark reseeds the counter if Redis loses it mid-day
	if err := a.seed.Raise(ctx, day, int(n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var i int
		fmt.Sscanf(n, "%d", &i)
		return i
	}
	return 0
}
