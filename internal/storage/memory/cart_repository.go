package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type cartRepositoryInMemory struct {
	store *Store
}

func (r *cartRepositoryInMemory) Get(_ context.Context, id string) (*domain.Cart, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	cart, ok := r.store.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	clone := cloneCart(cart)
	return &clone, nil
}

// UpdateActive повторяет условие PostgreSQL: только существующая активная строка
// и только снимком не старее текущего.
func (r *cartRepositoryInMemory) UpdateActive(_ context.Context, cart *domain.Cart) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.carts[cart.ID]
	if !ok || current.Status != domain.CartStatusActive || current.UpdatedAt.After(cart.UpdatedAt) {
		return nil
	}
	r.store.carts[cart.ID] = cloneCart(*cart)
	return nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.carts, id)
	return nil
}

func (r *cartRepositoryInMemory) ListExpiredActive(_ context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	if limit <= 0 {
		limit = 100
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.Cart, 0)
	for _, cart := range r.store.carts {
		if cart.Status != domain.CartStatusActive || !cart.ExpiresAt.Before(before) {
			continue
		}
		clone := cloneCart(cart)
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type cartTx txScope

func (t *cartTx) FindByIDForUpdate(_ context.Context, id string) (*domain.Cart, error) {
	if staged, ok := t.carts[id]; ok {
		if staged == nil {
			return nil, domain.ErrCartNotFound
		}
		clone := cloneCart(*staged)
		return &clone, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	cart, ok := t.store.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	clone := cloneCart(cart)
	return &clone, nil
}

func (t *cartTx) Save(_ context.Context, cart *domain.Cart) error {
	clone := cloneCart(*cart)
	t.carts[cart.ID] = &clone
	return nil
}

func (t *cartTx) Delete(_ context.Context, id string) error {
	t.carts[id] = nil
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = slices.Clone(cart.Items)
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}

var (
	_ domain.CartRepository   = (*cartRepositoryInMemory)(nil)
	_ domain.CartTxRepository = (*cartTx)(nil)
)
