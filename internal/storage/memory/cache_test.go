package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestReservationCache_ExactMatchAndTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := memory.NewCache(clock.Now).Reservations()
	ctx := context.Background()

	if err := cache.Reserve(ctx, domain.Reservation{ProductID: "p-1", CartID: "c-1", Quantity: 3}, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	ok, _ := cache.Verify(ctx, "p-1", "c-1", 3)
	if !ok {
		t.Fatal("expected exact match")
	}
	if ok, _ := cache.Verify(ctx, "p-1", "c-1", 2); ok {
		t.Fatal("smaller quantity must not match")
	}

	// перезапись, а не накопление
	_ = cache.Reserve(ctx, domain.Reservation{ProductID: "p-1", CartID: "c-1", Quantity: 5}, time.Minute)
	if ok, _ := cache.Verify(ctx, "p-1", "c-1", 5); !ok {
		t.Fatal("expected overwritten quantity")
	}

	carts, _ := cache.ReservedCarts(ctx, "p-1")
	if len(carts) != 1 || carts[0] != "c-1" {
		t.Fatalf("unexpected reserved carts: %v", carts)
	}

	clock.Advance(2 * time.Minute)
	if ok, _ := cache.Verify(ctx, "p-1", "c-1", 5); ok {
		t.Fatal("expired reservation must not verify")
	}
	if carts, _ := cache.ReservedCarts(ctx, "p-1"); len(carts) != 0 {
		t.Fatalf("expired reservation must drop out of index: %v", carts)
	}
}

func TestReservationCache_ReleaseIsIdempotent(t *testing.T) {
	cache := memory.NewCache(nil).Reservations()
	ctx := context.Background()

	_ = cache.Reserve(ctx, domain.Reservation{ProductID: "p-1", CartID: "c-1", Quantity: 1}, time.Minute)
	_ = cache.Reserve(ctx, domain.Reservation{ProductID: "p-2", CartID: "c-1", Quantity: 1}, time.Minute)

	if err := cache.ClearForCart(ctx, "c-1", []string{"p-1", "p-2"}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := cache.ClearForCart(ctx, "c-1", []string{"p-1", "p-2"}); err != nil {
		t.Fatalf("repeated clear: %v", err)
	}
	if err := cache.Release(ctx, "p-1", "c-1"); err != nil {
		t.Fatalf("release absent: %v", err)
	}
	if ok, _ := cache.Verify(ctx, "p-2", "c-1", 1); ok {
		t.Fatal("cleared reservation must not verify")
	}
}

func TestCartCache_TombstoneAndMiss(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := memory.NewCache(clock.Now).CartCache()
	ctx := context.Background()

	cart := domain.NewCart(time.Minute, clock.Now())
	if got, err := cache.Get(ctx, cart.ID); err != nil || got != nil {
		t.Fatalf("expected miss, got %v %v", got, err)
	}

	_ = cache.Set(ctx, cart, time.Minute)
	got, _ := cache.Get(ctx, cart.ID)
	if got == nil || got.ID != cart.ID {
		t.Fatal("expected cached cart")
	}

	_ = cache.MarkClosed(ctx, cart.ID, time.Hour)
	if closed, _ := cache.IsClosed(ctx, cart.ID); !closed {
		t.Fatal("expected tombstone")
	}

	clock.Advance(2 * time.Minute)
	if got, _ := cache.Get(ctx, cart.ID); got != nil {
		t.Fatal("expected cart entry to expire")
	}
}

func TestIdempotencyStore_AcquireRelease(t *testing.T) {
	store := memory.NewCache(nil).Idempotency()
	ctx := context.Background()

	first, _ := store.Acquire(ctx, "payment:o-1", time.Hour)
	second, _ := store.Acquire(ctx, "payment:o-1", time.Hour)
	if !first || second {
		t.Fatalf("expected first acquire only, got %v %v", first, second)
	}

	_ = store.Release(ctx, "payment:o-1")
	if again, _ := store.Acquire(ctx, "payment:o-1", time.Hour); !again {
		t.Fatal("expected acquire after release")
	}
}

func TestCartLocker_BusyAndRelease(t *testing.T) {
	locker := memory.NewCartLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "c-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := locker.Lock(ctx, "c-1"); !errors.Is(err, domain.ErrCartBusy) {
		t.Fatalf("expected ErrCartBusy, got %v", err)
	}

	other, err := locker.Lock(ctx, "c-2")
	if err != nil {
		t.Fatalf("other cart must not be blocked: %v", err)
	}
	other()

	waiter := make(chan error, 1)
	slow := memory.NewCartLocker(time.Second)
	unlockSlow, _ := slow.Lock(ctx, "c-3")
	go func() {
		release, err := slow.Lock(ctx, "c-3")
		if err == nil {
			release()
		}
		waiter <- err
	}()
	time.Sleep(10 * time.Millisecond)
	unlockSlow()
	unlockSlow()
	if err := <-waiter; err != nil {
		t.Fatalf("waiter must acquire after release: %v", err)
	}

	unlock()
}
