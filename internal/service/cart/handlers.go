package cart

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
)

// PersistHandler записывает снимок корзины в БД (topic persist-shopping-cart).
type PersistHandler struct {
	store  *Store
	repo   domain.CartRepository
	logger *log.Entry
}

// NewPersistHandler создаёт обработчик persist-задач.
func NewPersistHandler(store *Store, repo domain.CartRepository, logger *log.Entry) *PersistHandler {
	if logger == nil {
		logger = log.WithField("component", "cart-persist-handler")
	}
	return &PersistHandler{store: store, repo: repo, logger: logger}
}

// Handle пропускает закрытые корзины и обновляет только живую активную строку:
// корзину, удалённую checkout-ом или DeleteCart, задача не воскрешает.
func (h *PersistHandler) Handle(ctx context.Context, payload []byte) error {
	var msg domain.PersistShoppingCartPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: decode persist payload: %v", jobs.ErrPermanent, err)
	}
	if msg.Cart.ID == "" {
		return fmt.Errorf("%w: persist payload without cart id", jobs.ErrPermanent)
	}

	closed, err := h.store.IsClosed(ctx, msg.Cart.ID)
	if err != nil {
		return err
	}
	if closed {
		h.logger.WithField("cart_id", msg.Cart.ID).Debug("skip persist of closed cart")
		return nil
	}

	if err := h.repo.UpdateActive(ctx, &msg.Cart); err != nil {
		return fmt.Errorf("persist cart %s: %w", msg.Cart.ID, err)
	}
	return nil
}

// DeleteHandler удаляет строку корзины (topic delete-shopping-cart).
type DeleteHandler struct {
	repo domain.CartRepository
}

// NewDeleteHandler создаёт обработчик delete-задач.
func NewDeleteHandler(repo domain.CartRepository) *DeleteHandler {
	return &DeleteHandler{repo: repo}
}

// Handle идемпотентна: отсутствие строки не ошибка.
func (h *DeleteHandler) Handle(ctx context.Context, payload []byte) error {
	var msg domain.DeleteShoppingCartPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: decode delete payload: %v", jobs.ErrPermanent, err)
	}
	if msg.CartID == "" {
		return fmt.Errorf("%w: delete payload without cart id", jobs.ErrPermanent)
	}

	if err := h.repo.Delete(ctx, msg.CartID); err != nil {
		return fmt.Errorf("delete cart %s: %w", msg.CartID, err)
	}
	return nil
}

var (
	_ jobs.Handler = (*PersistHandler)(nil)
	_ jobs.Handler = (*DeleteHandler)(nil)
)
