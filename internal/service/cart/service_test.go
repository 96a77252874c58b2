package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type fixture struct {
	store *memory.Store
	cache *memory.Cache
	jobs  interface {
		All(topic string) []domain.Job
	}
	carts   *cart.Store
	service *cart.Service
	locker  *memory.CartLocker
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.store = memory.NewStore()
	f.cache = memory.NewCache(clock)
	jobRepo := memory.NewJobRepository()
	f.jobs = jobRepo
	f.locker = memory.NewCartLocker(50 * time.Millisecond)
	f.carts = cart.NewStore(f.cache.CartCache(), f.store.Carts(), jobs.NewQueue(jobRepo, nil), cart.WithStoreClock(clock))
	f.service = cart.NewService(f.store, f.carts, f.cache.Reservations(), f.locker,
		cart.WithClock(clock),
		cart.WithCartTTL(20*time.Minute),
	)
	return f
}

func (f *fixture) seedProduct(t *testing.T, id string, stock int, price string) {
	t.Helper()
	p, err := domain.NewProduct(domain.ProductParams{
		ID:             id,
		OrganizationID: "org-1",
		Name:           "Product " + id,
		Description:    "test product",
		Price:          decimal.RequireFromString(price),
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

func (f *fixture) product(t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := f.store.Products().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p
}

func TestService_AddItemCreatesCartAndReserves(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "19.90")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 2)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if c.ID == "" || c.Status != domain.CartStatusActive {
		t.Fatalf("unexpected cart %+v", c)
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 2 {
		t.Fatalf("expected reserved 2, got %d", got)
	}

	ok, err := f.cache.Reservations().Verify(ctx, "p-1", c.ID, 2)
	if err != nil || !ok {
		t.Fatalf("expected reservation 2 in cache, ok=%v err=%v", ok, err)
	}

	row, err := f.store.Carts().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("cart row must be written with the reservation: %v", err)
	}
	if row.Quantity("p-1") != 2 {
		t.Fatalf("expected row quantity 2, got %d", row.Quantity("p-1"))
	}

	persisted := f.jobs.All(domain.TopicPersistShoppingCart)
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persist job, got %d", len(persisted))
	}
	if persisted[0].Policy != domain.CartJobPolicy {
		t.Fatalf("unexpected persist policy %+v", persisted[0].Policy)
	}
}

func TestService_AddItemIsCumulative(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "5.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 2)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	c, err = f.service.AddItem(ctx, c.ID, "p-1", 3)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(c.Items) != 1 || c.Items[0].Quantity != 5 {
		t.Fatalf("expected single line of 5, got %+v", c.Items)
	}
	if !c.Total().Equal(decimal.RequireFromString("25")) {
		t.Fatalf("expected total 25, got %s", c.Total())
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 5 {
		t.Fatalf("expected reserved 5, got %d", got)
	}

	// Резерв в кэше перезаписывается итоговым количеством.
	ok, _ := f.cache.Reservations().Verify(ctx, "p-1", c.ID, 5)
	if !ok {
		t.Fatal("expected cached reservation of 5")
	}
}

func TestService_AddItemRejectsCumulativeOverReserve(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 5, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 3)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err = f.service.AddItem(ctx, c.ID, "p-1", 3)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 3 {
		t.Fatalf("failed add must not change reserved stock, got %d", got)
	}

	stored, err := f.service.GetCart(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if stored.Quantity("p-1") != 3 {
		t.Fatalf("expected quantity 3 after rejected add, got %d", stored.Quantity("p-1"))
	}
}

func TestService_AddItemValidation(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 5, "1.00")
	ctx := context.Background()

	tests := []struct {
		name      string
		cartID    string
		productID string
		qty       int
		want      error
	}{
		{name: "empty product", productID: "", qty: 1, want: domain.ErrProductIDRequired},
		{name: "zero quantity", productID: "p-1", qty: 0, want: domain.ErrQuantityInvalid},
		{name: "unknown product", productID: "missing", qty: 1, want: domain.ErrProductNotFound},
		{name: "unknown cart", cartID: "missing-cart", productID: "p-1", qty: 1, want: domain.ErrCartNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.AddItem(ctx, tt.cartID, tt.productID, tt.qty)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_AddItemToExpiredCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 5, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	f.now = f.now.Add(21 * time.Minute)
	_, err = f.service.AddItem(ctx, c.ID, "p-1", 1)
	if !errors.Is(err, domain.ErrCartExpired) {
		t.Fatalf("expected ErrCartExpired, got %v", err)
	}
}

func TestService_RemoveItemReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	f.seedProduct(t, "p-2", 10, "2.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 4)
	if err != nil {
		t.Fatalf("add p-1: %v", err)
	}
	if _, err := f.service.AddItem(ctx, c.ID, "p-2", 1); err != nil {
		t.Fatalf("add p-2: %v", err)
	}

	c, err = f.service.RemoveItem(ctx, c.ID, "p-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Quantity("p-1") != 0 || c.Quantity("p-2") != 1 {
		t.Fatalf("unexpected items after remove %+v", c.Items)
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 0 {
		t.Fatalf("expected p-1 reserved 0, got %d", got)
	}
	if ok, _ := f.cache.Reservations().Verify(ctx, "p-1", c.ID, 4); ok {
		t.Fatal("reservation must be released in cache")
	}

	// Повторное удаление отсутствующей позиции ничего не меняет.
	if _, err := f.service.RemoveItem(ctx, c.ID, "p-1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 0 {
		t.Fatalf("expected p-1 reserved 0 after no-op, got %d", got)
	}
}

func TestService_DeleteCartReleasesAllAndTombstones(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	f.seedProduct(t, "p-2", 10, "2.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-2", 2)
	if err != nil {
		t.Fatalf("add p-2: %v", err)
	}
	if _, err := f.service.AddItem(ctx, c.ID, "p-1", 3); err != nil {
		t.Fatalf("add p-1: %v", err)
	}

	if err := f.service.DeleteCart(ctx, c.ID); err != nil {
		t.Fatalf("delete cart: %v", err)
	}

	for _, id := range []string{"p-1", "p-2"} {
		if got := f.product(t, id).ReservedStock(); got != 0 {
			t.Fatalf("expected %s reserved 0, got %d", id, got)
		}
	}
	if _, err := f.service.GetCart(ctx, c.ID); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after delete, got %v", err)
	}
	closed, err := f.carts.IsClosed(ctx, c.ID)
	if err != nil || !closed {
		t.Fatalf("expected tombstone, closed=%v err=%v", closed, err)
	}
	if got := len(f.jobs.All(domain.TopicDeleteShoppingCart)); got != 1 {
		t.Fatalf("expected 1 delete job, got %d", got)
	}
}

func TestService_CartBusy(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	unlock, err := f.locker.Lock(ctx, c.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	_, err = f.service.AddItem(ctx, c.ID, "p-1", 1)
	if !errors.Is(err, domain.ErrCartBusy) {
		t.Fatalf("expected ErrCartBusy, got %v", err)
	}
}

func TestStore_GetRepopulatesCacheFromDatabase(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.carts.Invalidate(ctx, c.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := f.carts.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get after miss: %v", err)
	}
	if got.Quantity("p-1") != 1 {
		t.Fatalf("unexpected cart from database %+v", got.Items)
	}

	cached, err := f.cache.CartCache().Get(ctx, c.ID)
	if err != nil || cached == nil {
		t.Fatalf("expected cache to be repopulated, cached=%v err=%v", cached, err)
	}
}

func TestPersistHandler_SkipsClosedCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	ctx := context.Background()
	handler := cart.NewPersistHandler(f.carts, f.store.Carts(), nil)

	open, err := f.service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	snapshot := *open
	snapshot.ExpiresAt = snapshot.ExpiresAt.Add(time.Minute)
	snapshot.UpdatedAt = snapshot.UpdatedAt.Add(time.Second)
	payload, err := json.Marshal(domain.PersistShoppingCartPayload{Cart: snapshot, Timestamp: f.now})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := handler.Handle(ctx, payload); err != nil {
		t.Fatalf("persist open cart: %v", err)
	}
	row, err := f.store.Carts().Get(ctx, open.ID)
	if err != nil {
		t.Fatalf("expected persisted cart: %v", err)
	}
	if !row.ExpiresAt.Equal(snapshot.ExpiresAt) {
		t.Fatalf("expected newer snapshot applied, expires_at=%s", row.ExpiresAt)
	}

	// Строки нет: снимок из очереди её не создаёт.
	unknown := domain.NewCart(time.Minute, f.now)
	payload, _ = json.Marshal(domain.PersistShoppingCartPayload{Cart: *unknown, Timestamp: f.now})
	if err := handler.Handle(ctx, payload); err != nil {
		t.Fatalf("persist unknown cart: %v", err)
	}
	if _, err := f.store.Carts().Get(ctx, unknown.ID); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("persist job must not insert a cart, got %v", err)
	}

	closed := domain.NewCart(time.Minute, f.now)
	if err := f.carts.Evict(ctx, closed.ID); err != nil {
		t.Fatalf("evict: %v", err)
	}
	payload, _ = json.Marshal(domain.PersistShoppingCartPayload{Cart: *closed, Timestamp: f.now})
	if err := handler.Handle(ctx, payload); err != nil {
		t.Fatalf("persist closed cart: %v", err)
	}
	if _, err := f.store.Carts().Get(ctx, closed.ID); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("closed cart must not be resurrected, got %v", err)
	}
}

func TestPersistHandler_LateSnapshotDoesNotReviveDeletedCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.service.DeleteCart(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Обработчик с пустым кэшем не видит tombstone удалённой корзины.
	clock := func() time.Time { return f.now }
	blind := cart.NewStore(memory.NewCache(clock).CartCache(), f.store.Carts(),
		jobs.NewQueue(memory.NewJobRepository(), nil), cart.WithStoreClock(clock))
	handler := cart.NewPersistHandler(blind, f.store.Carts(), nil)

	persisted := f.jobs.All(domain.TopicPersistShoppingCart)
	if len(persisted) == 0 {
		t.Fatal("expected persist job of deleted cart")
	}
	for _, job := range persisted {
		if err := handler.Handle(ctx, job.Payload); err != nil {
			t.Fatalf("replay persist: %v", err)
		}
	}

	if _, err := f.store.Carts().Get(ctx, c.ID); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("deleted cart must stay deleted, got %v", err)
	}
	if got := f.product(t, "p-1").ReservedStock(); got != 0 {
		t.Fatalf("expected reserved 0, got %d", got)
	}
}

// failingQueue отказывает в постановке задачи, пока failures > 0.
type failingQueue struct {
	next     domain.JobQueue
	failures int
}

func (q *failingQueue) Enqueue(ctx context.Context, topic string, payload any, policy domain.RetryPolicy) error {
	if q.failures > 0 {
		q.failures--
		return errors.New("queue down")
	}
	return q.next.Enqueue(ctx, topic, payload, policy)
}

func TestService_SnapshotFailureKeepsCommittedCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	f.seedProduct(t, "p-2", 10, "1.00")
	ctx := context.Background()

	clock := func() time.Time { return f.now }
	queue := &failingQueue{next: jobs.NewQueue(memory.NewJobRepository(), nil)}
	carts := cart.NewStore(f.cache.CartCache(), f.store.Carts(), queue, cart.WithStoreClock(clock))
	service := cart.NewService(f.store, carts, f.cache.Reservations(), f.locker, cart.WithClock(clock))

	c, err := service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}

	queue.failures = 1
	if _, err := service.AddItem(ctx, c.ID, "p-2", 4); err != nil {
		t.Fatalf("add must succeed once committed, got %v", err)
	}

	got, err := service.GetCart(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(got.Items) != 2 || got.Quantity("p-2") != 4 {
		t.Fatalf("expected committed cart with p-2 x4, got %+v", got.Items)
	}
	if reserved := f.product(t, "p-2").ReservedStock(); reserved != got.Quantity("p-2") {
		t.Fatalf("cart shows %d units of p-2, ledger reserved %d", got.Quantity("p-2"), reserved)
	}
}

func TestService_RolledBackAddLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p-1", 10, "1.00")
	f.seedProduct(t, "p-2", 3, "1.00")
	ctx := context.Background()

	c, err := f.service.AddItem(ctx, "", "p-1", 1)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	before := len(f.jobs.All(domain.TopicPersistShoppingCart))

	if _, err := f.service.AddItem(ctx, c.ID, "p-2", 4); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	got, err := f.service.GetCart(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if got.Quantity("p-2") != 0 || len(got.Items) != 1 {
		t.Fatalf("rolled back line must not be served, got %+v", got.Items)
	}
	if after := len(f.jobs.All(domain.TopicPersistShoppingCart)); after != before {
		t.Fatalf("rolled back add must not enqueue persist, jobs %d -> %d", before, after)
	}
}

func TestHandlers_RejectMalformedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	persist := cart.NewPersistHandler(f.carts, f.store.Carts(), nil)
	if err := persist.Handle(ctx, []byte("{broken")); !errors.Is(err, jobs.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	del := cart.NewDeleteHandler(f.store.Carts())
	if err := del.Handle(ctx, []byte(`{}`)); !errors.Is(err, jobs.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if err := del.Handle(ctx, []byte(`{"cartId":"missing"}`)); err != nil {
		t.Fatalf("delete of missing cart must succeed: %v", err)
	}
}
