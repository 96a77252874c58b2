package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderRepositoryInMemory struct {
	store *Store
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByOrganization возвращает заказы с участием организации, новые первыми.
func (r *orderRepositoryInMemory) ListByOrganization(_ context.Context, organizationID string) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if !order.HasOrganization(organizationID) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// UpdateStatus перезаписывает статус заказа.
func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = updatedAt
	r.store.orders[id] = order
	return nil
}

type orderTx txScope

// Create добавляет заказ в транзакцию, если ID ещё не занят.
func (t *orderTx) Create(_ context.Context, order domain.Order) error {
	t.store.mu.RLock()
	_, exists := t.store.orders[order.ID]
	t.store.mu.RUnlock()
	if _, staged := t.orders[order.ID]; exists || staged {
		return fmt.Errorf("%w: order %s", domain.ErrDuplicate, order.ID)
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.OrganizationIDs = slices.Clone(order.OrganizationIDs)
	return order
}

var (
	_ domain.OrderRepository   = (*orderRepositoryInMemory)(nil)
	_ domain.OrderTxRepository = (*orderTx)(nil)
)
