package events

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/order"
)

const channelPrefix = "orders:status:"

var _ Bus = (*RedisBus)(nil)

// RedisBus delivers events across API replicas through Redis pub/sub. Each
// user has a dedicated channel.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus creates a RedisBus on top of an existing client.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

// Channel returns the pub/sub channel for a user.
func Channel(userID string) string {
	return channelPrefix + userID
}

// PublishStatusChange implements order.StatusPublisher.
func (b *RedisBus) PublishStatusChange(ctx context.Context, o *order.Order) error {
	ev := FromOrder(o)
	if err := b.client.Publish(ctx, Channel(ev.UserID), ev.Marshal()).Err(); err != nil {
		return errors.Wrap(err, "publish status event")
	}
	return nil
}

// Subscribe implements Bus. It returns once Redis has confirmed the
// subscription.
func (b *RedisBus) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribe")
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan OrderStatusChanged, SubscriberBuffer)
	lg := zctx.From(ctx).With(zap.String("user_id", userID))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Unmarshal([]byte(msg.Payload))
				if err != nil {
					lg.Warn("Skipping malformed status event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					lg.Warn("Dropping status event for slow subscriber", zap.String("order_id", ev.OrderID))
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if err := ps.Close(); err != nil {
				lg.Debug("Close pubsub", zap.Error(err))
			}
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()

	return &Subscription{events: out, close: stop}, nil
}
