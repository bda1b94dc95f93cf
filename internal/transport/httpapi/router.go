// Package httpapi: HTTP/JSON интерфейс магазина на gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/metrics"
	"github.com/vladislavdragonenkov/camisetas/internal/service/catalog"
	"github.com/vladislavdragonenkov/camisetas/internal/service/orders"
)

// DefaultCORSOrigins: фронтенды магазина.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"https://t-shirts-omega.vercel.app",
}

// OrderService: операции над заказами, которые нужны HTTP-слою.
type OrderService interface {
	CreateConsolidatedOrder(ctx context.Context, in orders.CreateOrderInput) (domain.Order, error)
	CreatePerItemOrders(ctx context.Context, in orders.CreateOrderInput) ([]domain.Order, error)
	GetByID(ctx context.Context, id string) (domain.Order, error)
	GetByNumber(ctx context.Context, number int64) (domain.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]domain.Order, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult, error)
	UpdateStatusByID(ctx context.Context, id string, patch domain.StatusPatch) (domain.Order, error)
	UpdateStatusByNumber(ctx context.Context, number int64, patch domain.StatusPatch) (domain.Order, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (domain.Stats, error)
}

// CatalogService: CRUD футболок и купонов.
type CatalogService interface {
	CreateProduct(ctx context.Context, in catalog.ProductInput) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch catalog.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateCoupon(ctx context.Context, in catalog.CouponInput) (domain.Coupon, error)
	GetCoupon(ctx context.Context, id string) (domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, patch catalog.CouponPatch) (domain.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
}

// Config: зависимости и настройки роутера.
type Config struct {
	Orders      OrderService
	Catalog     CatalogService
	Logger      *log.Entry
	Metrics     *metrics.HTTPMetrics
	CORSOrigins []string
	// ServiceName передаётся в otelgin как имя сервера в span'ах.
	ServiceName string
}

// NewRouter собирает gin.Engine со всеми маршрутами /pedidos, /camisetas, /cupons.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "shop-service"
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		otelgin.Middleware(serviceName),
		observe(logger, cfg.Metrics),
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", headerRequestID},
			ExposeHeaders:    []string{headerRequestID},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	)

	oh := &orderHandler{svc: cfg.Orders, logger: logger}
	pedidos := r.Group("/pedidos")
	{
		pedidos.POST("", oh.create)
		pedidos.GET("", oh.list)
		pedidos.GET("/health", oh.health)
		pedidos.GET("/stats/resumo", oh.stats)
		pedidos.GET("/numero/:numero", oh.getByNumber)
		pedidos.PUT("/numero/:numero/status", oh.updateStatusByNumber)
		pedidos.GET("/telefone/:telefone", oh.listByPhone)
		pedidos.GET("/:id", oh.getByID)
		pedidos.PUT("/:id", oh.updateStatusByID)
		pedidos.PUT("/:id/status", oh.updateStatusByID)
		pedidos.DELETE("/:id", oh.delete)
	}

	ch := &catalogHandler{svc: cfg.Catalog, logger: logger}
	camisetas := r.Group("/camisetas")
	{
		camisetas.POST("", ch.createProduct)
		camisetas.GET("", ch.listProducts)
		camisetas.GET("/:id", ch.getProduct)
		camisetas.PUT("/:id", ch.updateProduct)
		camisetas.DELETE("/:id", ch.deleteProduct)
	}
	cupons := r.Group("/cupons")
	{
		cupons.POST("", ch.createCoupon)
		cupons.GET("", ch.listCoupons)
		cupons.GET("/:id", ch.getCoupon)
		cupons.PUT("/:id", ch.updateCoupon)
		cupons.DELETE("/:id", ch.deleteCoupon)
	}

	return r
}
