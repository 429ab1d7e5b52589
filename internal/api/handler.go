package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"happytoes/internal/models"
	"happytoes/internal/service"
	"happytoes/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog  *service.CatalogService
	cart     *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	admin    *service.AdminService
	profiles *service.ProfileService

	publishableKey string
	webhookSecret  string
	allowedOrigins []string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	cart *service.CartService,
	checkout *service.CheckoutService,
	orders *service.OrderService,
	admin *service.AdminService,
	profiles *service.ProfileService,
	publishableKey, webhookSecret string,
	allowedOrigins []string,
) *Handler {
	return &Handler{
		catalog:        catalog,
		cart:           cart,
		checkout:       checkout,
		orders:         orders,
		admin:          admin,
		profiles:       profiles,
		publishableKey: publishableKey,
		webhookSecret:  webhookSecret,
		allowedOrigins: allowedOrigins,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     h.allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-User-ID", "X-User-Email", "X-User-Role"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/config", h.clientConfig)
		api.GET("/products", h.listProducts)
		api.GET("/products/categories", h.listCategories)

		api.POST("/profiles", h.register)
		api.GET("/profiles/me", h.me)

		api.GET("/cart", h.cartEntries)
		api.GET("/cart/count", h.cartCount)
		api.POST("/cart/items", h.addCartItem)
		api.PUT("/cart/items/:id", h.updateCartItem)
		api.DELETE("/cart/items/:id", h.removeCartItem)

		api.POST("/checkout", h.beginCheckout)
		api.POST("/create-checkout-session", h.createCheckoutSession)
		api.POST("/payments/webhook", h.paymentWebhook)

		api.GET("/orders", h.listMyOrders)
		api.GET("/orders/:id", h.getMyOrder)

		admin := api.Group("/admin", h.requireAdmin)
		{
			admin.GET("/dashboard", h.dashboard)
			admin.GET("/orders", h.adminListOrders)
			admin.DELETE("/orders/:id", h.adminDeleteOrder)
			admin.PUT("/orders/:id/status", h.adminSetStatus)
			admin.POST("/orders/:id/toggle", h.adminToggleStatus)
			admin.POST("/products", h.adminCreateProduct)
			admin.PUT("/products/:id", h.adminUpdateProduct)
			admin.DELETE("/products/:id", h.adminDeleteProduct)
		}
	}
}

// identityFrom resolves the gateway-authenticated caller from request
// headers. Verification of the upstream auth token happens before this
// service.
func identityFrom(c *gin.Context) models.Identity {
	return models.Identity{
		UserID: c.GetHeader("X-User-ID"),
		Email:  c.GetHeader("X-User-Email"),
		Role:   c.GetHeader("X-User-Role"),
	}
}

// requireAdmin gates the back-office routes
func (h *Handler) requireAdmin(c *gin.Context) {
	identity := identityFrom(c)
	if identity.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if identity.Role != models.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}
	c.Next()
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

// clientConfig exposes the publishable credential the SPA needs
func (h *Handler) clientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"publishable_key":  h.publishableKey,
		"checkout_enabled": h.publishableKey != "",
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(),
		c.Query("search"), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load categories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	profile, err := h.profiles.Register(c.Request.Context(), identityFrom(c), req.FullName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h *Handler) me(c *gin.Context) {
	profile, err := h.profiles.Me(c.Request.Context(), identityFrom(c))
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, service.ErrNotSignedIn) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) cartEntries(c *gin.Context) {
	entries, err := h.cart.Entries(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    entries,
		"subtotal": service.Subtotal(entries),
		"tax":      service.Tax(entries),
		"total":    service.Total(entries),
	})
}

func (h *Handler) cartCount(c *gin.Context) {
	count, err := h.cart.Count(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req struct {
		ProductID int64 `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	line, err := h.cart.AddItem(c.Request.Context(), identityFrom(c), req.ProductID)
	if err != nil {
		respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	lineID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart line ID"})
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.cart.UpdateQuantity(c.Request.Context(), identityFrom(c), lineID, req.Quantity); err != nil {
		respondCartError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	lineID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart line ID"})
		return
	}

	if err := h.cart.RemoveItem(c.Request.Context(), identityFrom(c), lineID); err != nil {
		respondCartError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.OrdersForUser(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getMyOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), identityFrom(c), orderID)
	if err != nil {
		if errors.Is(err, service.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func respondCartError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotSignedIn) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
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
