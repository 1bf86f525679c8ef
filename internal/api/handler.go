package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout *service.CheckoutService
	stock    *service.StockService
	router   *webhook.Router
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout *service.CheckoutService, stock *service.StockService, router *webhook.Router) *Handler {
	return &Handler{
		checkout: checkout,
		stock:    stock,
		router:   router,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.placeOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/webhooks/payment", h.paymentWebhook)
		v1.GET("/stock/:productId", h.getStockLevel)
		v1.PUT("/admin/stock/:productId", h.setStockLevel)
	}
}

// healthCheck reports per-ledger health. A degraded volatile ledger is
// reported but non-fatal; a degraded durable ledger makes the service
// unavailable.
func (h *Handler) healthCheck(c *gin.Context) {
	health := h.stock.HealthCheck(c.Request.Context())

	status := http.StatusOK
	state := "healthy"
	if !health.VolatileOK {
		state = "degraded"
	}
	if !health.DurableOK {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":  state,
		"ledgers": health,
		"time":    time.Now().Unix(),
	})
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		var shortage *store.InsufficientStockError
		if errors.As(err, &shortage) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "Insufficient stock",
				"product_id": shortage.ProductID,
				"requested":  shortage.Requested,
				"available":  shortage.Available,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to place order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// paymentWebhook receives signature-verified provider events. Events that
// fail validation or processing get a 400 so the provider retries them;
// duplicates and unknown types are acknowledged with a 200.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var event models.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid event payload",
			"details": err.Error(),
		})
		return
	}

	result := h.router.RouteEvent(c.Request.Context(), &event)
	if result.Err != nil && !result.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"received": false,
			"message":  result.Message,
			"details":  result.Err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"success":  result.Success,
		"order_id": result.OrderID,
		"message":  result.Message,
	})
}

// getStockLevel reads the current stock level for a product
func (h *Handler) getStockLevel(c *gin.Context) {
	productID := c.Param("productId")

	level, err := h.stock.GetStockLevel(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Stock level not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"stock":      level,
	})
}

// setStockLevel overwrites a product's volatile counter (emergency reset)
func (h *Handler) setStockLevel(c *gin.Context) {
	productID := c.Param("productId")

	var req struct {
		Level int `json:"level" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.stock.SetStockLevel(c.Request.Context(), productID, req.Level); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to set stock level",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"stock":      req.Level,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
