package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Weight      decimal.Decimal `json:"weight"`
	Stock       int             `json:"stock"`
}

type updateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Weight      *decimal.Decimal `json:"weight"`
	Stock       *int             `json:"stock"`
}

type cartResponse struct {
	ID        string            `json:"id"`
	Status    domain.CartStatus `json:"status"`
	Items     []domain.CartItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	ExpiresAt time.Time         `json:"expiresAt"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func newCartResponse(cart *domain.Cart) cartResponse {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartResponse{
		ID:        cart.ID,
		Status:    cart.Status,
		Items:     items,
		Total:     cart.Total(),
		ExpiresAt: cart.ExpiresAt,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
}

type productResponse struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Weight         decimal.Decimal `json:"weight"`
	Stock          int             `json:"stock"`
	ReservedStock  int             `json:"reservedStock"`
	AvailableStock int             `json:"availableStock"`
	IsActive       bool            `json:"isActive"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		Weight:         p.Weight,
		Stock:          p.Stock(),
		ReservedStock:  p.ReservedStock(),
		AvailableStock: p.AvailableStock(),
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type orderItemResponse struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"productId"`
	OrganizationID string          `json:"organizationId"`
	ProductName    string          `json:"productName"`
	PriceSnapshot  decimal.Decimal `json:"priceSnapshot"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

func newOrderItems(items []domain.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			OrganizationID: item.OrganizationID,
			ProductName:    item.ProductName,
			PriceSnapshot:  item.PriceSnapshot,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
		})
	}
	return out
}

type orderResponse struct {
	ID              string              `json:"id"`
	Customer        domain.Customer     `json:"customer"`
	OrganizationIDs []string            `json:"organizationIds"`
	Items           []orderItemResponse `json:"items"`
	Total           decimal.Decimal     `json:"total"`
	Status          domain.OrderStatus  `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Customer:        o.Customer,
		OrganizationIDs: o.OrganizationIDs,
		Items:           newOrderItems(o.Items),
		Total:           o.Total,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type organizationOrderResponse struct {
	OrderID        string              `json:"orderId"`
	OrganizationID string              `json:"organizationId"`
	Customer       domain.Customer     `json:"customer"`
	Items          []orderItemResponse `json:"items"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	Status         domain.OrderStatus  `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

func newOrganizationOrderResponse(o domain.OrganizationOrder) organizationOrderResponse {
	return organizationOrderResponse{
		OrderID:        o.OrderID,
		OrganizationID: o.OrganizationID,
		Customer:       o.Customer,
		Items:          newOrderItems(o.Items),
		Subtotal:       o.Subtotal,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}
