package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

func (h *handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	product, err := h.services.Catalog.Create(c.Request.Context(), catalog.CreateProductInput{
		OrganizationID: c.Param("orgId"),
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Weight:         req.Weight,
		Stock:          req.Stock,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(product))
}

func (h *handler) listProducts(c *gin.Context) {
	products, err := h.services.Catalog.ListByOrganization(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) updateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	product, err := h.services.Catalog.Update(c.Request.Context(), c.Param("orgId"), c.Param("productId"), catalog.UpdateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Weight:      req.Weight,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *handler) disableProduct(c *gin.Context) {
	product, err := h.services.Catalog.Disable(c.Request.Context(), c.Param("orgId"), c.Param("productId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *handler) getProduct(c *gin.Context) {
	product, err := h.services.Catalog.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}
