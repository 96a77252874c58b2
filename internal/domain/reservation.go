package domain

import "time"

// Reservation описывает ограниченную по времени заявку корзины на количество товара.
// Живёт только в кэше и перезаписывается при изменении количества.
type Reservation struct {
	ProductID  string    `json:"productId"`
	CartID     string    `json:"cartId"`
	Quantity   int       `json:"quantity"`
	ReservedAt time.Time `json:"reservedAt"`
}

// Matches реализует точное сравнение количества при checkout.
func (r Reservation) Matches(expected int) bool {
	return r.Quantity == expected
}
