package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCartTTL — время жизни корзины, если CART_TTL_MINUTES не задан.
const DefaultCartTTL = 20 * time.Minute

// CartStatus описывает жизненный цикл корзины.
type CartStatus string

const (
	// корзина принимает изменения
	CartStatusActive CartStatus = "active"
	// корзина превращена в заказ
	CartStatusConfirmed CartStatus = "confirmed"
	// резервы корзины сняты reconciler-ом
	CartStatusExpired CartStatus = "expired"
)

// CartItem хранит позицию корзины со снимком цены на момент резерва.
type CartItem struct {
	ProductID      string          `json:"productId"`
	OrganizationID string          `json:"organizationId"`
	ProductName    string          `json:"productName"`
	Quantity       int             `json:"quantity"`
	PriceSnapshot  decimal.Decimal `json:"priceSnapshot"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// Cart — временная корзина покупателя. Позиции упорядочены по времени добавления.
type Cart struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	Status    CartStatus `json:"status"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCart создаёт активную корзину с дедлайном now+ttl.
func NewCart(ttl time.Duration, now time.Time) *Cart {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &Cart{
		ID:        uuid.NewString(),
		Items:     []CartItem{},
		Status:    CartStatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired сообщает, прошёл ли дедлайн корзины.
func (c *Cart) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// TTL возвращает оставшееся время жизни корзины.
func (c *Cart) TTL(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Quantity возвращает количество товара в корзине (0, если позиции нет).
func (c *Cart) Quantity(productID string) int {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// AddItem добавляет qty единиц товара. Проверка остатка идёт по накопленному
// количеству, а на складе резервируется только прирост qty.
func (c *Cart) AddItem(product *Product, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if err := c.ensureActive(now); err != nil {
		return err
	}
	if !product.IsActive {
		return ErrProductInactive
	}

	total := c.Quantity(product.ID) + qty
	// Лимит проверяется по накопленному количеству, а не по приросту.
	if total > product.AvailableStock() {
		return fmt.Errorf(
			"%w for product %s: available %d, requested %d",
			ErrInsufficientStock, product.Name, product.AvailableStock(), qty,
		)
	}

	if err := product.Reserve(qty); err != nil {
		return err
	}

	item := newCartItem(product, total)
	if i := c.indexOf(product.ID); i >= 0 {
		c.Items[i] = item
	} else {
		c.Items = append(c.Items, item)
	}
	c.UpdatedAt = now
	return nil
}

// RemoveItem снимает резерв позиции и удаляет её. Для отсутствующей позиции ничего не делает.
func (c *Cart) RemoveItem(product *Product, now time.Time) error {
	i := c.indexOf(product.ID)
	if i < 0 {
		return nil
	}
	if err := product.Release(c.Items[i].Quantity); err != nil {
		return err
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return nil
}

// Clear снимает все резервы корзины и очищает список позиций.
// products должен содержать каждый товар корзины.
func (c *Cart) Clear(products map[string]*Product, now time.Time) error {
	for _, item := range c.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		if err := product.Release(item.Quantity); err != nil {
			return err
		}
	}
	c.Items = []CartItem{}
	c.UpdatedAt = now
	return nil
}

// ConfirmCheckout переводит корзину в confirmed, если дедлайн не прошёл.
func (c *Cart) ConfirmCheckout(now time.Time) error {
	if c.IsExpired(now) {
		return ErrCartExpired
	}
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	c.Status = CartStatusConfirmed
	c.UpdatedAt = now
	return nil
}

// MarkExpired переводит активную корзину в expired.
func (c *Cart) MarkExpired(now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	c.Status = CartStatusExpired
	c.UpdatedAt = now
	return nil
}

// Total возвращает сумму подытогов позиций.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// OrganizationIDs возвращает уникальные организации позиций в порядке появления.
func (c *Cart) OrganizationIDs() []string {
	seen := make(map[string]struct{}, len(c.Items))
	result := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.OrganizationID]; ok {
			continue
		}
		seen[item.OrganizationID] = struct{}{}
		result = append(result, item.OrganizationID)
	}
	return result
}

// ProductIDs возвращает идентификаторы товаров корзины в порядке позиций.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (c *Cart) ensureActive(now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	if c.IsExpired(now) {
		return ErrCartExpired
	}
	return nil
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func newCartItem(product *Product, qty int) CartItem {
	return CartItem{
		ProductID:      product.ID,
		OrganizationID: product.OrganizationID,
		ProductName:    product.Name,
		Quantity:       qty,
		PriceSnapshot:  product.Price,
		Subtotal:       product.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}
