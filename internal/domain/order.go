package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// заказ создан, оплата ещё не обработана
	OrderStatusPending OrderStatus = "pending"
	// оплата принята в обработку
	OrderStatusProcessing OrderStatus = "processing"
	// заказ исполнен
	OrderStatusCompleted OrderStatus = "completed"
	// заказ отменён
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
}

// OrderItem хранит неизменяемый снимок позиции корзины на момент checkout.
type OrderItem struct {
	ID             string
	ProductID      string
	OrganizationID string
	ProductName    string
	PriceSnapshot  decimal.Decimal
	Quantity       int
	Subtotal       decimal.Decimal
}

// Order — заказ, созданный из подтверждённой корзины. Может охватывать несколько продавцов.
type Order struct {
	ID              string
	Customer        Customer
	OrganizationIDs []string
	Items           []OrderItem
	Total           decimal.Decimal
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder строит заказ как снимок позиций корзины. Сумма округляется до копеек.
func NewOrder(cart *Cart, customer Customer, now time.Time) (Order, error) {
	if len(cart.Items) == 0 {
		return Order{}, ErrCartEmpty
	}
	if err := customer.Validate(); err != nil {
		return Order{}, err
	}

	orderID := uuid.NewString()
	items := make([]OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, ci := range cart.Items {
		subtotal := ci.PriceSnapshot.Mul(decimal.NewFromInt(int64(ci.Quantity)))
		items = append(items, OrderItem{
			ID:             uuid.NewString(),
			ProductID:      ci.ProductID,
			OrganizationID: ci.OrganizationID,
			ProductName:    ci.ProductName,
			PriceSnapshot:  ci.PriceSnapshot,
			Quantity:       ci.Quantity,
			Subtotal:       subtotal,
		})
		total = total.Add(subtotal)
	}
	total = total.Round(2)
	if !total.IsPositive() {
		return Order{}, ErrOrderTotalInvalid
	}

	return Order{
		ID:              orderID,
		Customer:        customer,
		OrganizationIDs: cart.OrganizationIDs(),
		Items:           items,
		Total:           total,
		Status:          OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanTransition проверяет допустимость перехода статуса.
func (o *Order) CanTransition(to OrderStatus) bool {
	return slices.Contains(orderTransitions[o.Status], to)
}

// TransitionTo меняет статус заказа, если переход допустим.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	if o.Status == to {
		return nil
	}
	if !o.CanTransition(to) {
		return ErrOrderStatusTransition
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// HasOrganization сообщает, участвует ли организация в заказе.
func (o *Order) HasOrganization(organizationID string) bool {
	return slices.Contains(o.OrganizationIDs, organizationID)
}

// OrganizationOrder показывает заказ одному продавцу.
type OrganizationOrder struct {
	OrderID        string
	OrganizationID string
	Customer       Customer
	Items          []OrderItem
	Subtotal       decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ForOrganization возвращает только позиции организации и их подытог.
func (o *Order) ForOrganization(organizationID string) (OrganizationOrder, error) {
	if organizationID == "" {
		return OrganizationOrder{}, ErrOrganizationRequired
	}
	if !o.HasOrganization(organizationID) {
		return OrganizationOrder{}, ErrOrderNotInOrganization
	}

	view := OrganizationOrder{
		OrderID:        o.ID,
		OrganizationID: organizationID,
		Customer:       o.Customer,
		Items:          make([]OrderItem, 0, len(o.Items)),
		Subtotal:       decimal.Zero,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, item := range o.Items {
		if item.OrganizationID != organizationID {
			continue
		}
		view.Items = append(view.Items, item)
		view.Subtotal = view.Subtotal.Add(item.Subtotal)
	}
	view.Subtotal = view.Subtotal.Round(2)
	return view, nil
}
