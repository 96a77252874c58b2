package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestCartAddItemReservesIncrement(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(domain.DefaultCartTTL, now)
	p := makeProduct(t, "p-1", 10, "10.00")

	if err := cart.AddItem(p, 3, now); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := cart.AddItem(p, 2, now); err != nil {
		t.Fatalf("add again: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected single item, got %d", len(cart.Items))
	}
	if cart.Quantity("p-1") != 5 {
		t.Fatalf("expected quantity 5, got %d", cart.Quantity("p-1"))
	}
	if p.ReservedStock() != 5 {
		t.Fatalf("expected reserved 5, got %d", p.ReservedStock())
	}
	if !cart.Items[0].Subtotal.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected subtotal %s", cart.Items[0].Subtotal)
	}
}

func TestCartAddItemChecksCumulativeQuantity(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(domain.DefaultCartTTL, now)
	p := makeProduct(t, "p-1", 10, "1.00")

	if err := cart.AddItem(p, 6, now); err != nil {
		t.Fatalf("add: %v", err)
	}
	// доступно 4, в корзине 6: накопленное 6+4 больше доступного остатка.
	err := cart.AddItem(p, 4, now)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if p.ReservedStock() != 6 || cart.Quantity("p-1") != 6 {
		t.Fatalf("state changed on failure: reserved=%d qty=%d", p.ReservedStock(), cart.Quantity("p-1"))
	}
}

func TestCartAddItemErrors(t *testing.T) {
	now := time.Now().UTC()

	t.Run("invalid quantity", func(t *testing.T) {
		cart := domain.NewCart(domain.DefaultCartTTL, now)
		if err := cart.AddItem(makeProduct(t, "p", 5, "1"), 0, now); !errors.Is(err, domain.ErrQuantityInvalid) {
			t.Fatalf("expected ErrQuantityInvalid, got %v", err)
		}
	})

	t.Run("inactive product", func(t *testing.T) {
		cart := domain.NewCart(domain.DefaultCartTTL, now)
		p := makeProduct(t, "p", 5, "1")
		p.Disable()
		if err := cart.AddItem(p, 1, now); !errors.Is(err, domain.ErrProductInactive) {
			t.Fatalf("expected ErrProductInactive, got %v", err)
		}
	})

	t.Run("expired cart", func(t *testing.T) {
		cart := domain.NewCart(time.Minute, now)
		if err := cart.AddItem(makeProduct(t, "p", 5, "1"), 1, now.Add(2*time.Minute)); !errors.Is(err, domain.ErrCartExpired) {
			t.Fatalf("expected ErrCartExpired, got %v", err)
		}
	})

	t.Run("confirmed cart", func(t *testing.T) {
		cart := domain.NewCart(domain.DefaultCartTTL, now)
		cart.Status = domain.CartStatusConfirmed
		if err := cart.AddItem(makeProduct(t, "p", 5, "1"), 1, now); !errors.Is(err, domain.ErrCartNotActive) {
			t.Fatalf("expected ErrCartNotActive, got %v", err)
		}
	})
}

func TestCartRemoveItem(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(domain.DefaultCartTTL, now)
	p1 := makeProduct(t, "p-1", 10, "1.00")
	p2 := makeProduct(t, "p-2", 10, "1.00")

	if err := cart.AddItem(p1, 2, now); err != nil {
		t.Fatalf("add p1: %v", err)
	}
	if err := cart.AddItem(p2, 3, now); err != nil {
		t.Fatalf("add p2: %v", err)
	}

	if err := cart.RemoveItem(p1, now); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p1.ReservedStock() != 0 {
		t.Fatalf("expected p1 released, reserved=%d", p1.ReservedStock())
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "p-2" {
		t.Fatalf("unexpected items: %+v", cart.Items)
	}

	// повторное удаление ничего не меняет
	if err := cart.RemoveItem(p1, now); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestCartClear(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(domain.DefaultCartTTL, now)
	p1 := makeProduct(t, "p-1", 10, "1.00")
	p2 := makeProduct(t, "p-2", 10, "1.00")
	_ = cart.AddItem(p1, 2, now)
	_ = cart.AddItem(p2, 3, now)

	if err := cart.Clear(map[string]*domain.Product{"p-1": p1}, now); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for missing product, got %v", err)
	}

	p1 = makeProduct(t, "p-1", 10, "1.00")
	_ = p1.Reserve(2)
	p2 = makeProduct(t, "p-2", 10, "1.00")
	_ = p2.Reserve(3)
	if err := cart.Clear(map[string]*domain.Product{"p-1": p1, "p-2": p2}, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cart.Items) != 0 || p1.ReservedStock() != 0 || p2.ReservedStock() != 0 {
		t.Fatalf("expected empty cart and released stock")
	}
}

func TestCartConfirmCheckout(t *testing.T) {
	now := time.Now().UTC()

	cart := domain.NewCart(time.Minute, now)
	if err := cart.ConfirmCheckout(now.Add(2 * time.Minute)); !errors.Is(err, domain.ErrCartExpired) {
		t.Fatalf("expected ErrCartExpired, got %v", err)
	}

	if err := cart.ConfirmCheckout(now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if cart.Status != domain.CartStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", cart.Status)
	}
	if err := cart.ConfirmCheckout(now); !errors.Is(err, domain.ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive, got %v", err)
	}
}

func TestCartOrganizationIDsDeduplicated(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(domain.DefaultCartTTL, now)
	cart.Items = []domain.CartItem{
		{ProductID: "a", OrganizationID: "org-2"},
		{ProductID: "b", OrganizationID: "org-1"},
		{ProductID: "c", OrganizationID: "org-2"},
	}
	got := cart.OrganizationIDs()
	if len(got) != 2 || got[0] != "org-2" || got[1] != "org-1" {
		t.Fatalf("unexpected organizations %v", got)
	}
}

func TestCartTTL(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(0, now)
	if cart.TTL(now) != domain.DefaultCartTTL {
		t.Fatalf("expected default ttl, got %s", cart.TTL(now))
	}
	if cart.IsExpired(now.Add(domain.DefaultCartTTL)) {
		t.Fatal("cart must not expire exactly at deadline")
	}
	if !cart.IsExpired(now.Add(domain.DefaultCartTTL + time.Millisecond)) {
		t.Fatal("cart must expire after deadline")
	}
}
