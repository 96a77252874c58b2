package orders

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Service отдаёт заказы покупателю и продавцам.
type Service struct {
	repo domain.OrderRepository
}

// NewService создаёт сервис заказов.
func NewService(repo domain.OrderRepository) *Service {
	return &Service{repo: repo}
}

// Get возвращает заказ целиком.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.repo.Get(ctx, orderID)
}

// GetForOrganization возвращает только позиции организации и их подытог.
func (s *Service) GetForOrganization(ctx context.Context, orderID, organizationID string) (domain.OrganizationOrder, error) {
	if organizationID == "" {
		return domain.OrganizationOrder{}, domain.ErrOrganizationRequired
	}
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.OrganizationOrder{}, err
	}
	return order.ForOrganization(organizationID)
}

// ListForOrganization возвращает заказы с участием организации, новые первыми.
func (s *Service) ListForOrganization(ctx context.Context, organizationID string) ([]domain.OrganizationOrder, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}

	orders, err := s.repo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.OrganizationOrder, 0, len(orders))
	for _, order := range orders {
		view, err := order.ForOrganization(organizationID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
