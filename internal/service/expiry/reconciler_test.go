package expiry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/expiry"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

// pastGrace выводит корзину за дедлайн и за окно cartTTL после него.
const pastGrace = 2*domain.DefaultCartTTL + time.Second

type fixture struct {
	store       *memory.Store
	cache       *memory.Cache
	locker      *memory.CartLocker
	cartService *cart.Service
	reconciler  *expiry.Reconciler
	now         time.Time
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.store = memory.NewStore()
	f.cache = memory.NewCache(clock)
	f.locker = memory.NewCartLocker(20 * time.Millisecond)
	queue := jobs.NewQueue(memory.NewJobRepository(), nil)
	carts := cart.NewStore(f.cache.CartCache(), f.store.Carts(), queue, cart.WithStoreClock(clock))

	f.cartService = cart.NewService(f.store, carts, f.cache.Reservations(), f.locker, cart.WithClock(clock))
	f.reconciler = expiry.NewReconciler(f.store, f.store.Carts(), carts, f.cache.Reservations(), f.locker,
		expiry.WithClock(clock),
		expiry.WithBatchSize(batchSize),
	)
	return f
}

func (f *fixture) seedProduct(t *testing.T, id string, stock int) {
	t.Helper()
	p, err := domain.NewProduct(domain.ProductParams{
		ID:             id,
		OrganizationID: "org-1",
		Name:           "Product " + id,
		Description:    "expiry product",
		Price:          decimal.NewFromInt(7),
		Weight:         decimal.NewFromInt(1),
		Stock:          stock,
	}, f.now)
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	if err := f.store.Products().Create(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
}

func (f *fixture) reserved(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.Products().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.ReservedStock()
}

func TestReconciler_ReleasesExpiredCartOnce(t *testing.T) {
	f := newFixture(t, 100)
	f.seedProduct(t, "p-1", 10)
	ctx := context.Background()

	c, err := f.cartService.AddItem(ctx, "", "p-1", 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// До дедлайна reconciler ничего не трогает.
	result, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile before deadline: %v", err)
	}
	if result.Expired != 0 || f.reserved(t, "p-1") != 3 {
		t.Fatalf("active cart must be untouched, result=%+v reserved=%d", result, f.reserved(t, "p-1"))
	}

	f.now = f.now.Add(pastGrace)

	result, err = f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Expired != 1 || result.ReleasedUnits != 3 {
		t.Fatalf("expected 1 expired cart and 3 units, got %+v", result)
	}
	if got := f.reserved(t, "p-1"); got != 0 {
		t.Fatalf("expected reserved 0, got %d", got)
	}

	row, err := f.store.Carts().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart row: %v", err)
	}
	if row.Status != domain.CartStatusExpired {
		t.Fatalf("expected expired status, got %s", row.Status)
	}
	if ok, _ := f.cache.Reservations().Verify(ctx, "p-1", c.ID, 3); ok {
		t.Fatal("reservation must be cleared from cache")
	}

	result, err = f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if result.Expired != 0 || result.ReleasedUnits != 0 {
		t.Fatalf("second run must be a no-op, got %+v", result)
	}
	if got := f.reserved(t, "p-1"); got != 0 {
		t.Fatalf("second run must not release again, reserved=%d", got)
	}

	// Истёкшую корзину больше нельзя менять.
	if _, err := f.cartService.RemoveItem(ctx, c.ID, "p-1"); !errors.Is(err, domain.ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive for expired cart, got %v", err)
	}
}

func TestReconciler_KeepsCartWithinGraceWindow(t *testing.T) {
	f := newFixture(t, 100)
	f.seedProduct(t, "p-1", 10)
	ctx := context.Background()

	c, err := f.cartService.AddItem(ctx, "", "p-1", 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Дедлайн прошёл секунду назад: корзина ещё в окне cartTTL.
	f.now = f.now.Add(domain.DefaultCartTTL + time.Second)

	result, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Expired != 0 || result.ReleasedUnits != 0 {
		t.Fatalf("cart within grace window must be untouched, got %+v", result)
	}
	if got := f.reserved(t, "p-1"); got != 3 {
		t.Fatalf("expected reserved 3, got %d", got)
	}
	row, err := f.store.Carts().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart row: %v", err)
	}
	if row.Status != domain.CartStatusActive {
		t.Fatalf("expected active status, got %s", row.Status)
	}

	f.now = f.now.Add(domain.DefaultCartTTL)

	result, err = f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile after grace: %v", err)
	}
	if result.Expired != 1 || result.ReleasedUnits != 3 {
		t.Fatalf("expected cart expired after grace window, got %+v", result)
	}
}

func TestReconciler_ProcessesAllBatches(t *testing.T) {
	f := newFixture(t, 2)
	f.seedProduct(t, "p-1", 100)
	ctx := context.Background()

	for range 5 {
		if _, err := f.cartService.AddItem(ctx, "", "p-1", 2); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	f.now = f.now.Add(pastGrace)

	result, err := f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Expired != 5 || result.ReleasedUnits != 10 {
		t.Fatalf("expected 5 carts and 10 units, got %+v", result)
	}
	if got := f.reserved(t, "p-1"); got != 0 {
		t.Fatalf("expected reserved 0, got %d", got)
	}
}

func TestReconciler_SkipsBusyCart(t *testing.T) {
	f := newFixture(t, 100)
	f.seedProduct(t, "p-1", 10)
	ctx := context.Background()

	c, err := f.cartService.AddItem(ctx, "", "p-1", 4)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	f.now = f.now.Add(pastGrace)

	unlock, err := f.locker.Lock(ctx, c.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	result, err := f.reconciler.ReconcileOnce(ctx)
	unlock()
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Skipped != 1 || result.Expired != 0 || f.reserved(t, "p-1") != 4 {
		t.Fatalf("busy cart must be skipped, result=%+v reserved=%d", result, f.reserved(t, "p-1"))
	}

	result, err = f.reconciler.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile after unlock: %v", err)
	}
	if result.Expired != 1 || f.reserved(t, "p-1") != 0 {
		t.Fatalf("cart must be expired after unlock, result=%+v", result)
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reconciler.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}
