// Package router assembles the gin engine: middleware order and the billing routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/infrastructure/logger"
	"github.com/wasteline/backend/internal/interfaces/http/dto"
	"github.com/wasteline/backend/internal/interfaces/http/handler"
	"github.com/wasteline/backend/internal/interfaces/http/middleware"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Handlers bundles the billing HTTP handlers
type Handlers struct {
	Contract *handler.ContractHandler
	Payment  *handler.PaymentHandler
	Invoice  *handler.InvoiceHandler
	Report   *handler.ReportHandler
	Job      *handler.JobHandler
	Health   *handler.HealthHandler
}

// EngineConfig configures the engine middleware
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	Meter          metric.Meter // nil disables HTTP metrics
	CORS           middleware.CORSConfig
	TrustedProxies []string
	Logger         *zap.Logger
}

// NewEngine builds the gin engine with the standard middleware chain and
// every billing route mounted under /api/v1/billing.
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanAttributes(),
		logger.GinMiddleware(cfg.Logger),
		middleware.Recovery(cfg.Logger),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(maxBodyBytes),
	)
	if cfg.Meter != nil {
		metricsMW, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, err
		}
		engine.Use(metricsMW)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
	})
	engine.GET("/health", h.Health.Health)

	r := NewRouter(engine)
	r.Register(BillingRoutes(h))
	r.Setup()
	return engine, nil
}

// BillingRoutes declares the billing API
func BillingRoutes(h Handlers) *DomainGroup {
	billing := NewDomainGroup("billing", "/billing")

	billing.Group("contracts", "/contracts").
		PUT("/:client_id", h.Contract.Upsert).
		GET("/:client_id", h.Contract.Get)

	billing.Group("payments", "/payments").
		POST("/callback", h.Payment.Callback).
		POST("/manual", h.Payment.Manual).
		GET("/:id", h.Payment.Get)

	billing.Group("invoices", "/invoices").
		POST("/custom", h.Invoice.CreateCustom).
		GET("/overdue", h.Report.Overdue).
		GET("/:id", h.Invoice.Get)

	billing.Group("clients", "/clients/:client_id").
		GET("/invoices", h.Invoice.ListByClient).
		GET("/payments", h.Payment.ListByClient).
		GET("/balance", h.Report.ClientBalance)

	billing.Group("reports", "/reports").
		GET("/aging", h.Report.Aging)

	billing.Group("jobs", "/jobs").
		GET("", h.Job.List).
		POST("/invoice-generation/run", h.Job.RunInvoiceGeneration)

	return billing
}
