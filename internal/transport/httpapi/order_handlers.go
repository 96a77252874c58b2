package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.services.Orders.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) getOrganizationOrder(c *gin.Context) {
	view, err := h.services.Orders.GetForOrganization(c.Request.Context(), c.Param("orderId"), c.Param("orgId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrganizationOrderResponse(view))
}

func (h *handler) listOrganizationOrders(c *gin.Context) {
	views, err := h.services.Orders.ListForOrganization(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]organizationOrderResponse, 0, len(views))
	for _, view := range views {
		out = append(out, newOrganizationOrderResponse(view))
	}
	c.JSON(http.StatusOK, out)
}
