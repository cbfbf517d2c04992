package queue

import (
	"context"
	"sync"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// Board is a day's queue partitioned for display. Cancelled entries stay
// in the store but appear in no bucket.
type Board struct {
	Date           string                    `json:"date"`
	Waiting        []*types.QueueEntry       `json:"waiting"`
	InConsultation []*types.QueueEntry       `json:"in_consultation"`
	Completed      []*types.QueueEntry       `json:"completed"`
	Counts         map[types.QueueStatus]int `json:"counts"`
}

// GroupBoard partitions entries by status, keeping their order
func GroupBoard(date string, entries []*types.QueueEntry) *Board {
	b := &Board{
		Date:           date,
		Waiting:        []*types.QueueEntry{},
		InConsultation: []*types.QueueEntry{},
		Completed:      []*types.QueueEntry{},
	}
	for _, entry := range entries {
		switch entry.Status {
		case types.QueueWaiting:
			b.Waiting = append(b.Waiting, entry)
		case types.QueueInConsultation:
			b.InConsultation = append(b.InConsultation, entry)
		case types.QueueCompleted:
			b.Completed = append(b.Completed, entry)
		}
	}
	b.Counts = map[types.QueueStatus]int{
		types.QueueWaiting:        len(b.Waiting),
		types.QueueInConsultation: len(b.InConsultation),
		types.QueueCompleted:      len(b.Completed),
	}
	return b
}

func (b *Board) countLabels() map[string]int {
	out := make(map[string]int, len(b.Counts))
	for status, n := range b.Counts {
		out[string(status)] = n
	}
	return out
}

// LiveBoard keeps the current day's board fresh. Any change to the queue
// or invoices tables triggers a full re-list and regroup; change payloads
// are never merged.
type LiveBoard struct {
	engine *Engine
	store  interfaces.RowStore
	clock  func() time.Time

	mu        sync.RWMutex
	current   *Board
	listeners map[int]func(*Board)
	nextID    int

	dirty  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	unsubs []interfaces.Unsubscribe
}

// NewLiveBoard creates a live board. clock picks the day shown on each refresh.
func NewLiveBoard(engine *Engine, store interfaces.RowStore, clock func() time.Time) *LiveBoard {
	if clock == nil {
		clock = time.Now
	}
	return &LiveBoard{
		engine:    engine,
		store:     store,
		clock:     clock,
		listeners: make(map[int]func(*Board)),
		dirty:     make(chan struct{}, 1),
	}
}

// Start subscribes to store changes and builds the first board
func (lb *LiveBoard) Start(ctx context.Context) error {
	for _, table := range []string{types.TableQueue, types.TableInvoices} {
		unsub, err := lb.store.Subscribe(table, func(types.Change) { lb.Invalidate() })
		if err != nil {
			lb.unsubscribeAll()
			return err
		}
		lb.unsubs = append(lb.unsubs, unsub)
	}

	if _, err := lb.Refresh(ctx); err != nil {
		lb.unsubscribeAll()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	lb.cancel = cancel
	lb.done = make(chan struct{})
	go lb.run(runCtx)
	return nil
}

// Stop unsubscribes and waits for the refresh loop to exit
func (lb *LiveBoard) Stop() {
	lb.unsubscribeAll()
	if lb.cancel != nil {
		lb.cancel()
		<-lb.done
		lb.cancel = nil
	}
}

// Invalidate schedules a refresh. Bursts of changes coalesce into one.
func (lb *LiveBoard) Invalidate() {
	select {
	case lb.dirty <- struct{}{}:
	default:
	}
}

// Refresh re-lists the current day and publishes the new board
func (lb *LiveBoard) Refresh(ctx context.Context) (*Board, error) {
	board, err := lb.engine.Board(ctx, lb.clock())
	if err != nil {
		return nil, err
	}

	lb.mu.Lock()
	lb.current = board
	listeners := make([]func(*Board), 0, len(lb.listeners))
	for _, fn := range lb.listeners {
		listeners = append(listeners, fn)
	}
	lb.mu.Unlock()

	for _, fn := range listeners {
		fn(board)
	}
	return board, nil
}

// Current returns the last board built, nil before Start
func (lb *LiveBoard) Current() *Board {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.current
}

// OnUpdate registers fn for every refreshed board
func (lb *LiveBoard) OnUpdate(fn func(*Board)) func() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	id := lb.nextID
	lb.nextID++
	lb.listeners[id] = fn
	return func() {
		lb.mu.Lock()
		delete(lb.listeners, id)
		lb.mu.Unlock()
	}
}

func (lb *LiveBoard) run(ctx context.Context) {
	defer close(lb.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-lb.dirty:
			if _, err := lb.Refresh(ctx); err != nil && ctx.Err() == nil {
				lb.engine.logger.WithError(err).Warn("Failed to refresh live board")
			}
		}
	}
}

func (lb *LiveBoard) unsubscribeAll() {
	for _, unsub := range lb.unsubs {
		unsub()
	}
	lb.unsubs = nil
}
