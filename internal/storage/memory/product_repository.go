package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type productRepositoryInMemory struct {
	store *Store
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(_ context.Context, product *domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return fmt.Errorf("%w: product %s", domain.ErrDuplicate, product.ID)
	}
	r.store.products[product.ID] = *product
	return nil
}

// Get возвращает копию товара или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id string) (*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

// ListByOrganization возвращает товары организации, новые первыми.
func (r *productRepositoryInMemory) ListByOrganization(_ context.Context, organizationID string) ([]*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.Product, 0)
	for _, p := range r.store.products {
		if p.OrganizationID != organizationID {
			continue
		}
		result = append(result, &p)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

type productTx txScope

func (t *productTx) FindByIDForUpdate(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := t.products[id]; ok {
		return &p, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (t *productTx) FindByIDsForUpdate(ctx context.Context, ids []string) ([]*domain.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	result := make([]*domain.Product, 0, len(sorted))
	for _, id := range sorted {
		p, err := t.FindByIDForUpdate(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (t *productTx) Save(_ context.Context, product *domain.Product) error {
	if _, ok := t.products[product.ID]; !ok {
		t.store.mu.RLock()
		_, exists := t.store.products[product.ID]
		t.store.mu.RUnlock()
		if !exists {
			return domain.ErrProductNotFound
		}
	}
	t.products[product.ID] = *product
	return nil
}

var (
	_ domain.ProductRepository   = (*productRepositoryInMemory)(nil)
	_ domain.ProductTxRepository = (*productTx)(nil)
)
