package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxProductNameLength = 255
)

// Product — складская позиция организации. Остатки меняются только через
// Reserve/Release/Confirm и административную правку SetStock; вызывающий код
// обязан держать блокировку строки товара в БД на время операции.
type Product struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	// цена за единицу, неотрицательная
	Price decimal.Decimal
	// вес единицы, неотрицательный
	Weight    decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	stock         int
	reservedStock int
}

// ProductParams содержит атрибуты нового товара.
type ProductParams struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	Price          decimal.Decimal
	Weight         decimal.Decimal
	Stock          int
}

// NewProduct создаёт активный товар без резервов.
func NewProduct(params ProductParams, now time.Time) (*Product, error) {
	p := &Product{
		ID:             params.ID,
		OrganizationID: params.OrganizationID,
		Name:           strings.TrimSpace(params.Name),
		Description:    strings.TrimSpace(params.Description),
		Price:          params.Price,
		Weight:         params.Weight,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
		stock:          params.Stock,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// RestoreProduct восстанавливает товар из хранилища, проверяя инвариант остатков.
func RestoreProduct(p Product, stock, reservedStock int) (*Product, error) {
	if stock < 0 || reservedStock < 0 || reservedStock > stock {
		return nil, fmt.Errorf(
			"%w: product %s has stock=%d reserved=%d",
			ErrInvalidState, p.ID, stock, reservedStock,
		)
	}
	p.stock = stock
	p.reservedStock = reservedStock
	return &p, nil
}

// Stock возвращает общий остаток.
func (p *Product) Stock() int { return p.stock }

// ReservedStock возвращает количество единиц, удерживаемых открытыми корзинами.
func (p *Product) ReservedStock() int { return p.reservedStock }

// AvailableStock возвращает остаток, доступный для новых резервов.
func (p *Product) AvailableStock() int { return p.stock - p.reservedStock }

// CanReserve сообщает, можно ли зарезервировать qty единиц.
func (p *Product) CanReserve(qty int) bool {
	return qty > 0 && p.AvailableStock() >= qty
}

// Reserve увеличивает резерв на qty.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if !p.CanReserve(qty) {
		return fmt.Errorf(
			"%w for product %s: available %d, requested %d",
			ErrInsufficientStock, p.Name, p.AvailableStock(), qty,
		)
	}
	p.reservedStock += qty
	return nil
}

// Release снимает резерв на qty.
func (p *Product) Release(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if qty > p.reservedStock {
		return fmt.Errorf("%w: product %s reserved %d, requested %d", ErrReleaseExceedsReserved, p.ID, p.reservedStock, qty)
	}
	p.reservedStock -= qty
	return nil
}

// CanConfirm сообщает, можно ли перевести qty единиц резерва в продажу.
func (p *Product) CanConfirm(qty int) bool {
	return qty > 0 && qty <= p.reservedStock && qty <= p.stock
}

// Confirm переводит резерв в окончательную продажу: уменьшает и stock, и reservedStock.
func (p *Product) Confirm(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if qty > p.reservedStock {
		return fmt.Errorf("%w: product %s reserved %d, requested %d", ErrConfirmExceedsReserved, p.ID, p.reservedStock, qty)
	}
	if qty > p.stock {
		return fmt.Errorf("%w to confirm product %s: stock %d, requested %d", ErrInsufficientStock, p.ID, p.stock, qty)
	}
	p.stock -= qty
	p.reservedStock -= qty
	return nil
}

// SetStock меняет общий остаток по запросу администратора, но не ниже резерва.
func (p *Product) SetStock(stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must be a non-negative integer", ErrInvalidInput)
	}
	if stock < p.reservedStock {
		return fmt.Errorf("%w: reserved %d, requested stock %d", ErrStockBelowReserved, p.reservedStock, stock)
	}
	p.stock = stock
	return nil
}

// Disable снимает товар с продажи. Повторный вызов ничего не меняет.
func (p *Product) Disable() {
	p.IsActive = false
}

// ProductPatch описывает частичное обновление атрибутов товара.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Weight      *decimal.Decimal
	Stock       *int
}

// Apply применяет изменения и проверяет итоговое состояние.
func (p *Product) Apply(patch ProductPatch, now time.Time) error {
	next := *p
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Price != nil {
		next.Price = *patch.Price
	}
	if patch.Weight != nil {
		next.Weight = *patch.Weight
	}
	if patch.Stock != nil {
		if err := next.SetStock(*patch.Stock); err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*p = next
	return nil
}

func (p *Product) validate() error {
	fields := map[string]string{}
	if p.OrganizationID == "" {
		fields["organizationId"] = "organization id is required"
	}
	if p.Name == "" {
		fields["name"] = "product name is required"
	} else if len([]rune(p.Name)) > maxProductNameLength {
		fields["name"] = fmt.Sprintf("product name must not exceed %d characters", maxProductNameLength)
	}
	if p.Description == "" {
		fields["description"] = "product description is required"
	}
	if p.Price.IsNegative() {
		fields["price"] = "price must be greater than or equal to 0"
	}
	if p.Weight.IsNegative() {
		fields["weight"] = "weight must be greater than or equal to 0"
	}
	if p.stock < 0 {
		fields["stock"] = "stock must be a non-negative integer"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
