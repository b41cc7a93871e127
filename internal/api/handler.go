package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, paymentService *service.PaymentService) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.DELETE("/orders/:id", h.deleteOrder)
		v1.POST("/orders/:id/pay", h.initiatePayment)
		v1.GET("/orders/:id/payment", h.getPayment)
		v1.GET("/suppliers/:id/orders", h.listSupplierOrders)
		v1.GET("/resellers/:id/orders", h.listResellerOrders)
		v1.GET("/payments/verify", h.verifyPayment)
		v1.POST("/payments/webhook", h.paymentWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	req.BuyerIP = c.ClientIP()

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		status, payload := errorResponse(err, "Failed to create order")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, payload := errorResponse(err, "Failed to get order")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, order)
}

// cancelOrder handles explicit order cancellation
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID := c.Param("id")

	if err := h.orderService.CancelOrder(c.Request.Context(), orderID); err != nil {
		status, payload := errorResponse(err, "Failed to cancel order")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"status":   models.OrderStatusCancelled,
	})
}

// deleteOrder handles order deletion
func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.orderService.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		status, payload := errorResponse(err, "Failed to delete order")
		c.JSON(status, payload)
		return
	}

	c.Status(http.StatusNoContent)
}

// initiatePayment handles payment initialization for an order
func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	init, err := h.paymentService.InitiatePayment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		status, payload := errorResponse(err, "Failed to initialize payment")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, init)
}

// getPayment returns the order's newest payment attempt
func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, payload := errorResponse(err, "Failed to get payment")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// listSupplierOrders lists a supplier's orders, newest first
func (h *Handler) listSupplierOrders(c *gin.Context) {
	limit, offset := pagination(c)

	orders, err := h.orderService.ListOrdersBySupplier(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		status, payload := errorResponse(err, "Failed to list orders")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// listResellerOrders lists a reseller's orders, newest first
func (h *Handler) listResellerOrders(c *gin.Context) {
	limit, offset := pagination(c)

	orders, err := h.orderService.ListOrdersByReseller(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		status, payload := errorResponse(err, "Failed to list orders")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// verifyPayment reconciles a reference supplied by the payer's redirect
func (h *Handler) verifyPayment(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing reference"})
		return
	}

	result, err := h.paymentService.ReconcilePaymentCallback(c.Request.Context(), reference)
	if err != nil {
		status, payload := errorResponse(err, "Failed to verify payment")
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, result)
}

// paymentWebhook reconciles a reference delivered by the gateway. The
// outcome is re-verified against the gateway, never trusted from the body.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Data.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	result, err := h.paymentService.ReconcilePaymentCallback(c.Request.Context(), payload.Data.Reference)
	if err != nil {
		status, resp := errorResponse(err, "Failed to reconcile payment")
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, result)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// errorResponse maps domain errors to HTTP statuses
func errorResponse(err error, fallback string) (int, gin.H) {
	var short *models.InsufficientStockError
	if errors.As(err, &short) {
		return http.StatusNotAcceptable, gin.H{"error": short.Error()}
	}

	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrItemNotFound),
		errors.Is(err, models.ErrBuyerNotFound),
		errors.Is(err, models.ErrPaymentNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, models.ErrOrderExpired):
		return http.StatusGone, gin.H{"error": err.Error()}
	case errors.Is(err, models.ErrAlreadySettled):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, models.ErrOrderCancelled),
		errors.Is(err, models.ErrBuyerEmailRequired):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, models.ErrGatewayUnavailable):
		return http.StatusBadGateway, gin.H{"error": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{
			"error":   fallback,
			"details": err.Error(),
		}
	}
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
