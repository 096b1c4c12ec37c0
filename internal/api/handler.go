package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tour-payments/internal/service"
	"tour-payments/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxWebhookBody   = 64 << 10
	readinessTimeout = 2 * time.Second
	defaultListLimit = 50
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// StatusInfo is what the status page shows about the running instance
type StatusInfo struct {
	Port              string
	Env               string
	GatewayMode       string
	AccessTokenLength int
	StoreBackend      string
	QueueMode         string
}

// Handler contains HTTP handlers
type Handler struct {
	checkout *service.CheckoutService
	ingress  *service.WebhookIngress
	info     StatusInfo
	checks   map[string]ReadinessCheck
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout *service.CheckoutService, ingress *service.WebhookIngress, info StatusInfo) *Handler {
	return &Handler{
		checkout: checkout,
		ingress:  ingress,
		info:     info,
		checks:   make(map[string]ReadinessCheck),
		logger:   util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/", h.statusPage)
	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/create-preference", h.createPreference)
		api.GET("/orders", h.listOrders)
		api.GET("/orders/:id", h.getOrder)
	}

	router.POST("/webhook/mercadopago", h.mercadoPagoWebhook)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

// createPreference turns a storefront order into a payment intent
func (h *Handler) createPreference(c *gin.Context) {
	var raw service.RawOrder

	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   msgInvalidBody,
			"kind":    "invalidBody",
			"details": err.Error(),
		})
		return
	}

	if raw.OrderID == "" {
		raw.OrderID = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	res, err := h.checkout.Checkout(c.Request.Context(), raw)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			respondValidation(c, verr, raw)
			return
		}
		respondCheckoutError(c, err)
		return
	}

	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	intent := res.Order.Intent
	c.JSON(http.StatusOK, gin.H{
		"id":                 intent.ID,
		"init_point":         intent.RedirectURL,
		"sandbox_init_point": intent.SandboxRedirectURL,
		"orderId":            res.Order.ID,
	})
}

// getOrder returns an order with its payment status
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// listOrders returns the most recent orders
func (h *Handler) listOrders(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	orders, err := h.checkout.ListOrders(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// mercadoPagoWebhook acknowledges provider notifications. Only a failure to
// hand the notification over is answered with 500, so the provider redelivers.
func (h *Handler) mercadoPagoWebhook(c *gin.Context) {
	raw := service.RawNotification{
		Query:      c.Request.URL.Query(),
		ReceivedAt: time.Now().UTC(),
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			// The query string may still carry the legacy topic/id form
			h.logger.Warn("Malformed webhook body", zap.Error(err))
		}
	}

	res, err := h.ingress.Handle(c.Request.Context(), raw)
	if err != nil {
		h.logger.Error("Webhook ingestion failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	if res.Ignored {
		h.logger.Debug("Webhook acknowledged without reconciliation", zap.String("reason", res.Reason))
	}
	c.Status(http.StatusOK)
}
