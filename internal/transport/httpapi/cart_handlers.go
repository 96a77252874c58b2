package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	// заголовок и cookie с идентификатором корзины
	CartIDHeader = "X-Cart-Id"
	CartIDCookie = "cartId"

	cartIDContextKey = "cart_id"
)

// cartID берёт идентификатор корзины из заголовка, затем из cookie.
func cartID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(CartIDHeader)); id != "" {
		return id
	}
	if id, err := c.Cookie(CartIDCookie); err == nil {
		return strings.TrimSpace(id)
	}
	return ""
}

func (h *handler) setCartID(c *gin.Context, id string) {
	c.Set(cartIDContextKey, id)
	c.Header(CartIDHeader, id)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CartIDCookie, id, int(h.cartTTL.Seconds()), "/", "", false, true)
}

func (h *handler) clearCartID(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CartIDCookie, "", -1, "/", "", false, true)
}

func (h *handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	id := cartID(c)
	c.Set(cartIDContextKey, id)
	cart, err := h.services.Carts.AddItem(c.Request.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.setCartID(c, cart.ID)
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	c.JSON(status, newCartResponse(cart))
}

func (h *handler) getCart(c *gin.Context) {
	id := cartID(c)
	if id == "" {
		writeError(c, h.logger, domain.ErrCartIDRequired)
		return
	}
	c.Set(cartIDContextKey, id)

	cart, err := h.services.Carts.GetCart(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.setCartID(c, cart.ID)
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *handler) removeItem(c *gin.Context) {
	id := cartID(c)
	if id == "" {
		writeError(c, h.logger, domain.ErrCartIDRequired)
		return
	}
	c.Set(cartIDContextKey, id)

	cart, err := h.services.Carts.RemoveItem(c.Request.Context(), id, c.Param("productId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.setCartID(c, cart.ID)
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *handler) deleteCart(c *gin.Context) {
	id := cartID(c)
	if id == "" {
		writeError(c, h.logger, domain.ErrCartIDRequired)
		return
	}
	c.Set(cartIDContextKey, id)

	if err := h.services.Carts.DeleteCart(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.clearCartID(c)
	c.Status(http.StatusNoContent)
}

func (h *handler) checkout(c *gin.Context) {
	id := cartID(c)
	if id == "" {
		writeError(c, h.logger, domain.ErrCartIDRequired)
		return
	}
	c.Set(cartIDContextKey, id)

	var customer domain.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	order, err := h.services.Checkout.Checkout(c.Request.Context(), id, customer)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.clearCartID(c)
	c.JSON(http.StatusCreated, newOrderResponse(order))
}
