package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

// --- Mock implementations ---

type memStore struct {
	mu    sync.Mutex
	items map[string]*ingredient.Ingredient
	err   error
	calls int
}

func newMemStore(items ...ingredient.Ingredient) *memStore {
	m := &memStore{items: make(map[string]*ingredient.Ingredient, len(items))}
	for i := range items {
		m.items[items[i].Name] = &items[i]
	}
	return m
}

func (m *memStore) Decrement(_ context.Context, name string, quantity int) (*ingredient.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	ing, ok := m.items[name]
	if !ok {
		return nil, ingredient.ErrNotFound
	}
	if ing.Quantity < quantity {
		return nil, ingredient.ErrInsufficientStock
	}
	ing.Quantity -= quantity
	out := *ing
	return &out, nil
}

func (m *memStore) quantity(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[name].Quantity
}

type sentMail struct {
	to, subject, body string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockNotifier) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func (m *mockNotifier) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type memBacklog struct {
	mu      sync.Mutex
	entries map[string]*PendingAdjustment
	err     error
}

func newMemBacklog() *memBacklog {
	return &memBacklog{entries: make(map[string]*PendingAdjustment)}
}

func (m *memBacklog) Record(_ context.Context, p *PendingAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *p
	m.entries[p.ID] = &cp
	return nil
}

func (m *memBacklog) Claim(_ context.Context, now, until time.Time, limit int) ([]PendingAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []PendingAdjustment
	for _, p := range m.entries {
		if !p.NextAttemptAt.After(now) && len(out) < limit {
			p.NextAttemptAt = until
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memBacklog) Resolve(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *memBacklog) Reschedule(_ context.Context, id string, attempts int, lastErr string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[id]
	if !ok {
		return errors.New("no such entry")
	}
	p.Attempts = attempts
	p.LastError = lastErr
	p.NextAttemptAt = next
	return nil
}

func (m *memBacklog) list() []PendingAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingAdjustment
	for _, p := range m.entries {
		out = append(out, *p)
	}
	return out
}

// --- Tests ---

func TestConsume_LowStockNotification(t *testing.T) {
	tests := []struct {
		name       string
		quantity   int
		threshold  int
		decrement  int
		wantQty    int
		wantNotify bool
	}{
		{name: "drops below threshold", quantity: 12, threshold: 10, decrement: 3, wantQty: 9, wantNotify: true},
		{name: "stays above threshold", quantity: 20, threshold: 10, decrement: 3, wantQty: 17, wantNotify: false},
		{name: "lands exactly on threshold", quantity: 13, threshold: 10, decrement: 3, wantQty: 10, wantNotify: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(ingredient.Ingredient{Name: "Olives", Quantity: tt.quantity, Threshold: tt.threshold})
			notifier := &mockNotifier{}
			adj := NewAdjuster(store, notifier, nil, "admin@example.com")

			require.NoError(t, adj.Consume(context.Background(), "Olives", tt.decrement))
			adj.Wait()

			assert.Equal(t, tt.wantQty, store.quantity("Olives"))
			sent := notifier.messages()
			if !tt.wantNotify {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, "admin@example.com", sent[0].to)
			assert.Equal(t, "Low Stock Alert: Olives", sent[0].subject)
			assert.Contains(t, sent[0].body, "Current: 9")
		})
	}
}

func TestConsume_UnknownIngredientSkipped(t *testing.T) {
	store := newMemStore()
	notifier := &mockNotifier{}
	backlog := newMemBacklog()
	adj := NewAdjuster(store, notifier, backlog, "admin@example.com")

	require.NoError(t, adj.Consume(context.Background(), "Pineapple", 1))
	adj.Wait()

	assert.Equal(t, 1, store.calls)
	assert.Empty(t, notifier.messages())
	assert.Empty(t, backlog.list())
}

func TestConsume_NotificationFailureSwallowed(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Pesto", Quantity: 1, Threshold: 15})
	notifier := &mockNotifier{err: errors.New("smtp down")}
	adj := NewAdjuster(store, notifier, nil, "admin@example.com")

	require.NoError(t, adj.Consume(context.Background(), "Pesto", 1))
	adj.Wait()

	assert.Equal(t, 0, store.quantity("Pesto"))
	assert.Len(t, notifier.messages(), 1)
}

func TestConsume_InsufficientStockNotRecorded(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Olives", Quantity: 0, Threshold: 20})
	backlog := newMemBacklog()
	adj := NewAdjuster(store, &mockNotifier{}, backlog, "")

	err := adj.Consume(context.Background(), "Olives", 1)
	require.ErrorIs(t, err, ingredient.ErrInsufficientStock)
	assert.Empty(t, backlog.list())
	assert.Equal(t, 0, store.quantity("Olives"))
}

func TestConsume_StoreFailureRecordedInBacklog(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	backlog := newMemBacklog()
	adj := NewAdjuster(store, &mockNotifier{}, backlog, "")

	err := adj.Consume(context.Background(), "Mozzarella", 2)
	require.Error(t, err)

	entries := backlog.list()
	require.Len(t, entries, 1)
	assert.Equal(t, "Mozzarella", entries[0].Ingredient)
	assert.Equal(t, 2, entries[0].Quantity)
	assert.Contains(t, entries[0].LastError, "connection reset")
}

func TestConsume_BacklogFailureStillReturnsStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	backlog := newMemBacklog()
	backlog.err = errors.New("backlog down")
	adj := NewAdjuster(store, &mockNotifier{}, backlog, "")

	err := adj.Consume(context.Background(), "Mozzarella", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestConsume_ConcurrentLastUnit(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Olives", Quantity: 1, Threshold: 0})
	adj := NewAdjuster(store, &mockNotifier{}, nil, "")

	const workers = 2
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = adj.Consume(context.Background(), "Olives", 1)
		}()
	}
	close(start)
	wg.Wait()
	adj.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ingredient.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one consumer gets the last unit")
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, store.quantity("Olives"))
}
