package inventory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

func seedBacklog(t *testing.T, b *memBacklog, entries ...PendingAdjustment) {
	t.Helper()
	for i := range entries {
		require.NoError(t, b.Record(context.Background(), &entries[i]))
	}
}

func TestSweep_AppliesAndResolves(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Cheddar", Quantity: 50, Threshold: 15})
	backlog := newMemBacklog()
	seedBacklog(t, backlog, PendingAdjustment{ID: "a", Ingredient: "Cheddar", Quantity: 2})

	s := NewSweeper(backlog, NewAdjuster(store, &mockNotifier{}, nil, ""), time.Minute, 10)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 48, store.quantity("Cheddar"))
	assert.Empty(t, backlog.list())
}

func TestSweep_TerminalOutcomesResolved(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Olives", Quantity: 0, Threshold: 20})
	backlog := newMemBacklog()
	seedBacklog(t, backlog,
		PendingAdjustment{ID: "insufficient", Ingredient: "Olives", Quantity: 1},
		PendingAdjustment{ID: "unknown", Ingredient: "Anchovies", Quantity: 1},
	)

	s := NewSweeper(backlog, NewAdjuster(store, &mockNotifier{}, nil, ""), time.Minute, 10)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, backlog.list())
}

func TestSweep_FailureRescheduledWithBackoff(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("still down")
	backlog := newMemBacklog()
	seedBacklog(t, backlog, PendingAdjustment{ID: "a", Ingredient: "Pesto", Quantity: 1, Attempts: 2})

	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewSweeper(backlog, NewAdjuster(store, &mockNotifier{}, nil, ""), time.Minute, 10)
	s.now = func() time.Time { return fixedNow }

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	entries := backlog.list()
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Contains(t, entries[0].LastError, "still down")
	assert.Equal(t, fixedNow.Add(40*time.Second), entries[0].NextAttemptAt)
}

func TestSweep_ClaimError(t *testing.T) {
	backlog := newMemBacklog()
	backlog.err = errors.New("db down")
	s := NewSweeper(backlog, NewAdjuster(newMemStore(), &mockNotifier{}, nil, ""), time.Minute, 10)

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
}

func TestSweep_ConcurrentSweepersApplyOnce(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Cheddar", Quantity: 100, Threshold: 0})
	backlog := newMemBacklog()
	for i := range 20 {
		seedBacklog(t, backlog, PendingAdjustment{ID: fmt.Sprintf("p%d", i), Ingredient: "Cheddar", Quantity: 1})
	}
	adj := NewAdjuster(store, &mockNotifier{}, nil, "")

	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	start := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSweeper(backlog, adj, time.Minute, 20)
			<-start
			n, err := s.Sweep(context.Background())
			assert.NoError(t, err)
			total.Add(int64(n))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(20), total.Load())
	assert.Equal(t, 80, store.quantity("Cheddar"))
	assert.Empty(t, backlog.list())
}

func TestSweep_ClaimedEntriesSkipped(t *testing.T) {
	store := newMemStore(ingredient.Ingredient{Name: "Cheddar", Quantity: 10, Threshold: 0})
	backlog := newMemBacklog()
	seedBacklog(t, backlog, PendingAdjustment{ID: "a", Ingredient: "Cheddar", Quantity: 1})

	now := time.Now()
	claimed, err := backlog.Claim(context.Background(), now, now.Add(claimLease), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s := NewSweeper(backlog, NewAdjuster(store, &mockNotifier{}, nil, ""), time.Minute, 10)
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 10, store.quantity("Cheddar"))

	s.now = func() time.Time { return now.Add(claimLease) }
	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, store.quantity("Cheddar"))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 10*time.Second, backoff(1))
	assert.Equal(t, 20*time.Second, backoff(2))
	assert.Equal(t, 80*time.Second, backoff(4))
	assert.Equal(t, retryMax, backoff(20))
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore(ingredient.Ingredient{Name: "Cheddar", Quantity: 5, Threshold: 0})
	backlog := newMemBacklog()
	seedBacklog(t, backlog, PendingAdjustment{ID: "a", Ingredient: "Cheddar", Quantity: 1})

	s := NewSweeper(backlog, NewAdjuster(store, &mockNotifier{}, nil, ""), 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(backlog.list()) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 4, store.quantity("Cheddar"))
}
