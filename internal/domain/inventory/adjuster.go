// Package inventory applies stock deltas for consumed ingredients, raises
// low-stock notifications, and retries bookkeeping that failed after an order
// was already committed.
package inventory

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

const notifyTimeout = 30 * time.Second

// Store is the stock access the Adjuster needs.
type Store interface {
	Decrement(ctx context.Context, name string, quantity int) (*ingredient.Ingredient, error)
}

// Notifier delivers a message to a recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Adjuster decrements ingredient stock and alerts the administrator when an
// ingredient drops below its reorder threshold.
type Adjuster struct {
	store      Store
	notifier   Notifier
	backlog    Backlog
	adminEmail string

	wg sync.WaitGroup
}

// NewAdjuster creates an Adjuster. backlog may be nil, in which case failed
// adjustments are only reported to the caller.
func NewAdjuster(store Store, notifier Notifier, backlog Backlog, adminEmail string) *Adjuster {
	return &Adjuster{
		store:      store,
		notifier:   notifier,
		backlog:    backlog,
		adminEmail: adminEmail,
	}
}

// Consume removes quantity units of the named ingredient.
//
// Unknown ingredients are skipped without error. ErrInsufficientStock is
// returned when the store refuses the decrement. Any other store failure is
// recorded in the backlog for a later retry and returned.
func (a *Adjuster) Consume(ctx context.Context, name string, quantity int) error {
	err := a.apply(ctx, name, quantity)
	if err == nil || errors.Is(err, ingredient.ErrInsufficientStock) {
		return err
	}

	if a.backlog != nil {
		p := &PendingAdjustment{
			ID:            uuid.New().String(),
			Ingredient:    name,
			Quantity:      quantity,
			LastError:     err.Error(),
			NextAttemptAt: time.Now(),
		}
		if berr := a.backlog.Record(context.WithoutCancel(ctx), p); berr != nil {
			zctx.From(ctx).Error("Failed to record pending stock adjustment",
				zap.String("ingredient", name),
				zap.Int("quantity", quantity),
				zap.Error(berr),
			)
		}
	}
	return err
}

// apply performs one decrement without touching the backlog.
func (a *Adjuster) apply(ctx context.Context, name string, quantity int) error {
	ing, err := a.store.Decrement(ctx, name, quantity)
	if err != nil {
		if errors.Is(err, ingredient.ErrNotFound) {
			zctx.From(ctx).Warn("Skipping stock adjustment for unknown ingredient", zap.String("ingredient", name))
			return nil
		}
		return fmt.Errorf("decrement %q: %w", name, err)
	}

	if ing.LowStock() {
		a.alert(ctx, *ing)
	}
	return nil
}

// alert sends the low-stock notification in the background. Delivery
// failures are logged and never reach the caller.
func (a *Adjuster) alert(ctx context.Context, ing ingredient.Ingredient) {
	lg := zctx.From(ctx)
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		subject := "Low Stock Alert: " + ing.Name
		body := fmt.Sprintf("<p>Stock for %s is below threshold. Current: %d</p>",
			html.EscapeString(ing.Name), ing.Quantity)

		if err := a.notifier.Send(ctx, a.adminEmail, subject, body); err != nil {
			lg.Warn("Low stock notification failed",
				zap.String("ingredient", ing.Name),
				zap.Error(err),
			)
			return
		}
		lg.Info("Low stock notification sent",
			zap.String("ingredient", ing.Name),
			zap.Int("quantity", ing.Quantity),
			zap.Int("threshold", ing.Threshold),
		)
	}()
}

// Wait blocks until in-flight notifications have finished.
func (a *Adjuster) Wait() {
	a.wg.Wait()
}
