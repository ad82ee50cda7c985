package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	ctxUserID  = "user_id"
	ctxIsAdmin = "is_admin"
)

// Bookings is the customer booking flow
type Bookings interface {
	Profile(ctx context.Context, userID string) (*models.UserProfile, error)
	Product(ctx context.Context, productID string) (*service.ProductView, error)
	Create(ctx context.Context, userID string, req *service.CreateBookingRequest) (*service.CreateBookingResponse, error)
	Receipt(ctx context.Context, userID, bookingID string, isAdmin bool) (*models.OrderView, error)
}

// AdminChecker looks up the admin collection
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	bookings Bookings
	sessions *service.SessionRegistry
	verifier auth.Verifier
	admins   AdminChecker
	loc      *time.Location
	deps     map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. loc is the display timezone used
// to read date filters.
func NewHandler(
	bookings Bookings,
	sessions *service.SessionRegistry,
	verifier auth.Verifier,
	admins AdminChecker,
	loc *time.Location,
	deps map[string]Pinger,
) *Handler {
	return &Handler{
		bookings: bookings,
		sessions: sessions,
		verifier: verifier,
		admins:   admins,
		loc:      loc,
		deps:     deps,
		logger:   util.GetLogger(),
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

	v1 := router.Group("/api/v1", h.authenticate)
	{
		v1.GET("/session", h.getSession)
		v1.GET("/profile", h.getProfile)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings/:id", h.getBooking)
		v1.GET("/my/orders", h.listMyOrders)
		v1.DELETE("/my/orders/:id", h.cancelMyOrder)
	}

	admin := v1.Group("/admin", h.requireAdmin)
	{
		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/export", h.exportOrders)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.DELETE("/orders/:id", h.deleteOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// authenticate resolves the bearer token to a user id
func (h *Handler) authenticate(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Missing bearer token",
		})
		return
	}

	uid, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Invalid token",
			"details": err.Error(),
		})
		return
	}

	c.Set(ctxUserID, uid)
	c.Next()
}

// requireAdmin rejects users without an admin entry
func (h *Handler) requireAdmin(c *gin.Context) {
	isAdmin, err := h.isAdmin(c)
	if err != nil {
		h.logger.Error("Admin lookup failed", zap.String("user_id", userID(c)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to verify admin access",
			"details": err.Error(),
		})
		return
	}
	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Access denied. Admin privileges required.",
		})
		return
	}
	c.Next()
}

// isAdmin looks the caller up once per request
func (h *Handler) isAdmin(c *gin.Context) (bool, error) {
	if v, ok := c.Get(ctxIsAdmin); ok {
		return v.(bool), nil
	}
	isAdmin, err := h.admins.IsAdmin(c.Request.Context(), userID(c))
	if err != nil {
		return false, err
	}
	c.Set(ctxIsAdmin, isAdmin)
	return isAdmin, nil
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// getSession returns who the caller is
func (h *Handler) getSession(c *gin.Context) {
	isAdmin, err := h.isAdmin(c)
	if err != nil {
		h.respondError(c, "Failed to load session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID(c),
		"is_admin": isAdmin,
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
