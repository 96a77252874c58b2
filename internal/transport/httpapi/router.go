package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

// CartService — операции корзины, нужные API.
type CartService interface {
	AddItem(ctx context.Context, cartID, productID string, qty int) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, cartID string) error
}

// CheckoutService превращает корзину в заказ.
type CheckoutService interface {
	Checkout(ctx context.Context, cartID string, customer domain.Customer) (domain.Order, error)
}

// CatalogService администрирует товары.
type CatalogService interface {
	Create(ctx context.Context, in catalog.CreateProductInput) (*domain.Product, error)
	Update(ctx context.Context, organizationID, productID string, in catalog.UpdateProductInput) (*domain.Product, error)
	Disable(ctx context.Context, organizationID, productID string) (*domain.Product, error)
	Get(ctx context.Context, productID string) (*domain.Product, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*domain.Product, error)
}

// OrderService читает заказы.
type OrderService interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	GetForOrganization(ctx context.Context, orderID, organizationID string) (domain.OrganizationOrder, error)
	ListForOrganization(ctx context.Context, organizationID string) ([]domain.OrganizationOrder, error)
}

// Services собирает зависимости обработчиков.
type Services struct {
	Carts    CartService
	Checkout CheckoutService
	Catalog  CatalogService
	Orders   OrderService
}

// RouterOptions настраивает HTTP API.
type RouterOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.HTTPMetrics
	AllowOrigins []string
	CartTTL      time.Duration
}

// RouterOption изменяет RouterOptions.
type RouterOption func(*RouterOptions)

// WithLogger задаёт логгер запросов.
func WithLogger(logger *log.Entry) RouterOption {
	return func(o *RouterOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics включает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) RouterOption {
	return func(o *RouterOptions) {
		o.Metrics = m
	}
}

// WithAllowOrigins ограничивает CORS списком источников.
func WithAllowOrigins(origins ...string) RouterOption {
	return func(o *RouterOptions) {
		if len(origins) > 0 {
			o.AllowOrigins = origins
		}
	}
}

// WithCartTTL задаёт срок жизни cookie с идентификатором корзины.
func WithCartTTL(ttl time.Duration) RouterOption {
	return func(o *RouterOptions) {
		if ttl > 0 {
			o.CartTTL = ttl
		}
	}
}

type handler struct {
	services Services
	logger   *log.Entry
	cartTTL  time.Duration
}

// NewRouter собирает gin.Engine со всеми маршрутами API.
func NewRouter(services Services, opts ...RouterOption) *gin.Engine {
	options := RouterOptions{
		Logger:       log.WithField("component", "http-api"),
		AllowOrigins: []string{"*"},
		CartTTL:      domain.DefaultCartTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}

	h := &handler{services: services, logger: options.Logger, cartTTL: options.CartTTL}

	r := gin.New()
	r.Use(recovery(options.Logger), requestLogger(options.Logger))
	if options.Metrics != nil {
		r.Use(requestMetrics(options.Metrics))
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     options.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", CartIDHeader},
		ExposeHeaders:    []string{"Content-Length", CartIDHeader},
		AllowCredentials: !containsWildcard(options.AllowOrigins),
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, ErrorResponse{Code: CodeNotFound, Message: "route not found"})
	})

	cart := r.Group("/cart")
	cart.POST("/items", h.addItem)
	cart.GET("", h.getCart)
	cart.DELETE("/items/:productId", h.removeItem)
	cart.DELETE("", h.deleteCart)
	cart.POST("/checkout", h.checkout)

	r.GET("/orders/:orderId", h.getOrder)
	r.GET("/products/:productId", h.getProduct)

	org := r.Group("/organizations/:orgId")
	org.GET("/orders", h.listOrganizationOrders)
	org.GET("/orders/:orderId", h.getOrganizationOrder)
	org.POST("/products", h.createProduct)
	org.GET("/products", h.listProducts)
	org.PATCH("/products/:productId", h.updateProduct)
	org.DELETE("/products/:productId", h.disableProduct)

	return r
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
