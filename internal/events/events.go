// Package events fans out order status changes to live subscribers.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pizza-delivery/internal/domain/order"
)

// SubscriberBuffer is the number of undelivered events kept per subscriber.
// Further events are dropped until the subscriber catches up.
const SubscriberBuffer = 16

// OrderStatusChanged is published whenever staff move an order to a new status.
type OrderStatusChanged struct {
	OrderID string
	UserID  string
	Status  order.Status
	At      time.Time
}

// FromOrder builds the event for an updated order.
func FromOrder(o *order.Order) OrderStatusChanged {
	at := o.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return OrderStatusChanged{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
		At:      at.UTC(),
	}
}

// Encode writes the event as {"orderId", "userId", "status", "at"}.
func (ev OrderStatusChanged) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(ev.OrderID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(ev.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(ev.Status)) })
		e.Field("at", func(e *jx.Encoder) { e.Str(ev.At.Format(time.RFC3339Nano)) })
	})
}

// Marshal returns the JSON encoding of the event.
func (ev OrderStatusChanged) Marshal() []byte {
	var e jx.Encoder
	ev.Encode(&e)
	return e.Bytes()
}

// Unmarshal parses an event produced by Marshal.
func Unmarshal(data []byte) (OrderStatusChanged, error) {
	var ev OrderStatusChanged
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId":
			v, err := d.Str()
			ev.OrderID = v
			return err
		case "userId":
			v, err := d.Str()
			ev.UserID = v
			return err
		case "status":
			v, err := d.Str()
			ev.Status = order.Status(v)
			return err
		case "at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.At, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return ev, errors.Wrap(err, "decode status event")
	}
	return ev, nil
}

// Bus publishes status changes and lets a user follow their own orders.
type Bus interface {
	order.StatusPublisher
	// Subscribe streams events for userID until the subscription is closed
	// or ctx is done.
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
}

// Subscription is a live stream of one user's status changes.
type Subscription struct {
	events <-chan OrderStatusChanged
	close  func()
}

// Events returns the stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan OrderStatusChanged {
	return s.events
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.close()
}
