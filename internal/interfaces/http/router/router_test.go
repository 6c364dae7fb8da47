package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/wasteline/backend/internal/interfaces/http/dto"
	"github.com/wasteline/backend/internal/interfaces/http/handler"
	"github.com/wasteline/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandlers() Handlers {
	return Handlers{
		Contract: handler.NewContractHandler(nil),
		Payment:  handler.NewPaymentHandler(nil),
		Invoice:  handler.NewInvoiceHandler(nil),
		Report:   handler.NewReportHandler(nil, nil),
		Job:      handler.NewJobHandler(nil, nil),
		Health: handler.NewHealthHandler("test", map[string]handler.HealthCheck{
			"database": func(context.Context) error { return nil },
		}),
	}
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_NestedWithMiddleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("billing", "/billing")
	g.Group("reports", "/reports").
		Use(func(c *gin.Context) { c.Header("X-Group", "reports"); c.Next() }).
		GET("/aging", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/reports/aging", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reports", w.Header().Get("X-Group"))
	assert.Equal(t, "billing", g.Name())
	assert.Equal(t, "/billing", g.Prefix())
}

func TestBillingRoutes(t *testing.T) {
	routes := BillingRoutes(testHandlers()).Routes()

	assert.ElementsMatch(t, []string{
		"PUT /billing/contracts/:client_id",
		"GET /billing/contracts/:client_id",
		"POST /billing/payments/callback",
		"POST /billing/payments/manual",
		"GET /billing/payments/:id",
		"POST /billing/invoices/custom",
		"GET /billing/invoices/overdue",
		"GET /billing/invoices/:id",
		"GET /billing/clients/:client_id/invoices",
		"GET /billing/clients/:client_id/payments",
		"GET /billing/clients/:client_id/balance",
		"GET /billing/reports/aging",
		"GET /billing/jobs",
		"POST /billing/jobs/invoice-generation/run",
	}, routes)
}

func TestNewEngine(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	engine, err := NewEngine(EngineConfig{
		ServiceName: "billing-test",
		Meter:       provider.Meter("test"),
		CORS:        middleware.DefaultCORSConfig(),
	}, testHandlers())
	require.NoError(t, err)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("unknown route uses envelope", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/nope", nil))
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("validation happens before services", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
