package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CreateProductInput содержит данные нового товара организации.
type CreateProductInput struct {
	OrganizationID string
	Name           string
	Description    string
	Price          decimal.Decimal
	Weight         decimal.Decimal
	Stock          int
}

// UpdateProductInput описывает частичное обновление: nil-поля не меняются.
type UpdateProductInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Weight      *decimal.Decimal
	Stock       *int
}

// Service администрирует каталог организаций.
type Service struct {
	products domain.ProductRepository
	tx       domain.Transactor
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, tx domain.Transactor, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{products: products, tx: tx, logger: logger, now: time.Now}
}

// Create проверяет атрибуты и сохраняет активный товар без резервов.
func (s *Service) Create(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	if in.OrganizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}

	product, err := domain.NewProduct(domain.ProductParams{
		ID:             uuid.NewString(),
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		Description:    in.Description,
		Price:          in.Price,
		Weight:         in.Weight,
		Stock:          in.Stock,
	}, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"product_id":      product.ID,
		"organization_id": product.OrganizationID,
		"stock":           product.Stock(),
	}).Info("product created")
	return product, nil
}

// Update применяет частичное обновление под блокировкой строки товара.
// Остаток нельзя опустить ниже текущего резерва.
func (s *Service) Update(ctx context.Context, organizationID, productID string, in UpdateProductInput) (*domain.Product, error) {
	var updated *domain.Product
	err := s.withOwnedProduct(ctx, organizationID, productID, func(ctx context.Context, tx domain.Tx, p *domain.Product) error {
		patch := domain.ProductPatch{
			Name:        in.Name,
			Description: in.Description,
			Price:       in.Price,
			Weight:      in.Weight,
			Stock:       in.Stock,
		}
		if err := p.Apply(patch, s.now().UTC()); err != nil {
			return err
		}
		if err := tx.Products().Save(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("product_id", productID).Info("product updated")
	return updated, nil
}

// Disable снимает товар с продажи; существующие резервы остаются.
func (s *Service) Disable(ctx context.Context, organizationID, productID string) (*domain.Product, error) {
	var disabled *domain.Product
	err := s.withOwnedProduct(ctx, organizationID, productID, func(ctx context.Context, tx domain.Tx, p *domain.Product) error {
		p.Disable()
		p.UpdatedAt = s.now().UTC()
		if err := tx.Products().Save(ctx, p); err != nil {
			return err
		}
		disabled = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("product_id", productID).Info("product disabled")
	return disabled, nil
}

// Get возвращает товар по идентификатору.
func (s *Service) Get(ctx context.Context, productID string) (*domain.Product, error) {
	if productID == "" {
		return nil, domain.ErrProductIDRequired
	}
	return s.products.Get(ctx, productID)
}

// ListByOrganization возвращает товары организации.
func (s *Service) ListByOrganization(ctx context.Context, organizationID string) ([]*domain.Product, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	return s.products.ListByOrganization(ctx, organizationID)
}

func (s *Service) withOwnedProduct(
	ctx context.Context,
	organizationID, productID string,
	fn func(ctx context.Context, tx domain.Tx, p *domain.Product) error,
) error {
	if organizationID == "" {
		return domain.ErrOrganizationRequired
	}
	if productID == "" {
		return domain.ErrProductIDRequired
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := tx.Products().FindByIDForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if p.OrganizationID != organizationID {
			return domain.ErrOrganizationMismatch
		}
		return fn(ctx, tx, p)
	})
}
