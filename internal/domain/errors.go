package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Категории ошибок. Конкретные ошибки оборачивают одну из них, транспорт
// сопоставляет категорию с кодом ответа через errors.Is.
var (
	// некорректные входные данные запроса
	ErrInvalidInput = errors.New("invalid input")
	// операция нарушает инвариант агрегата
	ErrInvalidState = errors.New("invalid state")
	// сущность отсутствует
	ErrNotFound = errors.New("not found")
	// резерв в кэше отсутствует или не совпадает с корзиной
	ErrReservationExpired = errors.New("reservation expired")
	// конкурентная операция над тем же ресурсом
	ErrConflict = errors.New("conflict")
	// ошибка ввода-вывода durable-хранилища
	ErrRepository = errors.New("repository failure")
)

var (
	// Ошибка неположительного количества товара.
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	// Ошибка пустого идентификатора корзины.
	ErrCartIDRequired = fmt.Errorf("%w: shopping cart id is required", ErrInvalidInput)
	// Ошибка пустого идентификатора товара.
	ErrProductIDRequired = fmt.Errorf("%w: product id is required", ErrInvalidInput)
	// Ошибка пустого идентификатора организации.
	ErrOrganizationRequired = fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	// Ошибка изменения товара чужой организацией.
	ErrOrganizationMismatch = fmt.Errorf("%w: product belongs to another organization", ErrInvalidInput)
	// ErrOrderNotInOrganization — заказ не содержит позиций организации.
	ErrOrderNotInOrganization = fmt.Errorf("%w: order does not belong to organization", ErrInvalidInput)

	// ErrInsufficientStock — доступного остатка не хватает для резерва/подтверждения.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrInvalidState)
	// попытка снять больше, чем зарезервировано
	ErrReleaseExceedsReserved = fmt.Errorf("%w: cannot release more stock than reserved", ErrInvalidState)
	// попытка подтвердить больше, чем зарезервировано
	ErrConfirmExceedsReserved = fmt.Errorf("%w: cannot confirm more stock than reserved", ErrInvalidState)
	// ErrStockBelowReserved — административная правка остатка ниже текущего резерва.
	ErrStockBelowReserved = fmt.Errorf("%w: stock cannot be lower than reserved stock", ErrInvalidState)
	// товар снят с продажи
	ErrProductInactive = fmt.Errorf("%w: product is not available", ErrInvalidState)
	// корзина уже подтверждена или истекла
	ErrCartNotActive = fmt.Errorf("%w: shopping cart is not active", ErrInvalidState)
	// дедлайн корзины прошёл
	ErrCartExpired = fmt.Errorf("%w: shopping cart has expired", ErrInvalidState)
	// checkout пустой корзины
	ErrCartEmpty = fmt.Errorf("%w: shopping cart is empty", ErrInvalidState)
	// ErrOrderTotalInvalid — сумма заказа должна быть строго положительной.
	ErrOrderTotalInvalid = fmt.Errorf("%w: order total must be greater than zero", ErrInvalidState)
	// недопустимый переход статуса заказа
	ErrOrderStatusTransition = fmt.Errorf("%w: order status transition is not allowed", ErrInvalidState)

	// ErrCartNotFound возвращается, если корзины нет ни в кэше, ни в БД.
	ErrCartNotFound = fmt.Errorf("%w: shopping cart not found", ErrNotFound)
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = fmt.Errorf("%w: product not found", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = fmt.Errorf("%w: order not found", ErrNotFound)
	// ErrJobNotFound возвращается, если задача очереди не найдена.
	ErrJobNotFound = fmt.Errorf("%w: job not found", ErrNotFound)

	// ErrCartBusy — корзина заблокирована другим запросом.
	ErrCartBusy = fmt.Errorf("%w: shopping cart is being modified by another request", ErrConflict)
	// запись с таким идентификатором уже существует
	ErrDuplicate = fmt.Errorf("%w: record already exists", ErrConflict)
)

// ReservationExpiredError описывает товар, резерв которого не подтвердился при checkout.
type ReservationExpiredError struct {
	ProductID   string
	ProductName string
}

func (e *ReservationExpiredError) Error() string {
	return fmt.Sprintf(
		"reservation for product %q has expired, please add items to a new cart and try again",
		e.ProductName,
	)
}

func (e *ReservationExpiredError) Unwrap() error {
	return ErrReservationExpired
}

// ValidationError собирает нарушения по полям входных данных.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range sortedKeys(e.Fields) {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RepositoryError помечает ошибку хранилища категорией ErrRepository, сохраняя исходную причину.
func RepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}

// IsClientError сообщает, что ошибка вызвана запросом, а не инфраструктурой.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrReservationExpired) ||
		errors.Is(err, ErrConflict)
}
