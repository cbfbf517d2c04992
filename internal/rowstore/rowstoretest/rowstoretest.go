// Package rowstoretest provides test doubles for code built on the row store.
package rowstoretest

import (
	"context"
	"sync"

	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockRowStore is a mock implementation of interfaces.RowStore
type MockRowStore struct {
	mock.Mock
}

func (m *MockRowStore) List(ctx context.Context, table string, q *types.Query) ([]types.Row, error) {
	args := m.Called(ctx, table, q)
	rows, _ := args.Get(0).([]types.Row)
	return rows, args.Error(1)
}

func (m *MockRowStore) Insert(ctx context.Context, table string, row types.Row) (types.Row, error) {
	args := m.Called(ctx, table, row)
	out, _ := args.Get(0).(types.Row)
	return out, args.Error(1)
}

func (m *MockRowStore) Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error) {
	args := m.Called(ctx, table, id, patch)
	out, _ := args.Get(0).(types.Row)
	return out, args.Error(1)
}

func (m *MockRowStore) UpdateIf(ctx context.Context, table, id string, guard *types.Query, patch types.Row) (types.Row, error) {
	args := m.Called(ctx, table, id, guard, patch)
	out, _ := args.Get(0).(types.Row)
	return out, args.Error(1)
}

func (m *MockRowStore) Delete(ctx context.Context, table, id string) error {
	args := m.Called(ctx, table, id)
	return args.Error(0)
}

func (m *MockRowStore) Subscribe(table string, onChange func(types.Change)) (interfaces.Unsubscribe, error) {
	args := m.Called(table, onChange)
	unsub, _ := args.Get(0).(interfaces.Unsubscribe)
	return unsub, args.Error(1)
}

// Rendezvous wraps a store so that, once armed, the next n List calls on a
// table return only after all n have read. Concurrent read-then-write callers
// then act on the same snapshot.
type Rendezvous struct {
	interfaces.RowStore

	mu      sync.Mutex
	table   string
	left    int
	release chan struct{}
}

// NewRendezvous wraps store
func NewRendezvous(store interfaces.RowStore) *Rendezvous {
	return &Rendezvous{RowStore: store}
}

// Arm holds the next n reads of table until all of them have happened
func (r *Rendezvous) Arm(table string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table
	r.left = n
	r.release = make(chan struct{})
}

// List reads through to the wrapped store, waiting at the barrier when armed
func (r *Rendezvous) List(ctx context.Context, table string, q *types.Query) ([]types.Row, error) {
	rows, err := r.RowStore.List(ctx, table, q)

	r.mu.Lock()
	var wait chan struct{}
	if r.release != nil && table == r.table {
		wait = r.release
		r.left--
		if r.left == 0 {
			close(r.release)
			r.release = nil
		}
	}
	r.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
		}
	}
	return rows, err
}

// Notifier keeps every notification it receives
type Notifier struct {
	mu   sync.Mutex
	sent []types.Notification
}

// Notify implements interfaces.Notifier
func (n *Notifier) Notify(kind types.NotificationKind, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, types.Notification{Kind: kind, Title: title, Message: message})
}

// Last returns the most recent notification, the zero value when none
func (n *Notifier) Last() types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return types.Notification{}
	}
	return n.sent[len(n.sent)-1]
}

// Sent returns a copy of every notification received
func (n *Notifier) Sent() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.sent...)
}
