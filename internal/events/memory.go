package events

import (
	"context"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/order"
)

var _ Bus = (*MemoryBus)(nil)

// MemoryBus delivers events within a single process.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan OrderStatusChanged]struct{}
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan OrderStatusChanged]struct{})}
}

// PublishStatusChange implements order.StatusPublisher. Slow subscribers
// miss events rather than block the publisher.
func (b *MemoryBus) PublishStatusChange(ctx context.Context, o *order.Order) error {
	ev := FromOrder(o)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			zctx.From(ctx).Warn("Dropping status event for slow subscriber",
				zap.String("order_id", ev.OrderID),
				zap.String("user_id", ev.UserID),
			)
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	ch := make(chan OrderStatusChanged, SubscriberBuffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan OrderStatusChanged]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()

	return &Subscription{events: ch, close: unsubscribe}, nil
}

// Subscribers returns the number of live subscriptions for userID.
func (b *MemoryBus) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
