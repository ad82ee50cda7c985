package api

import (
	"net/http"

	"storefront/internal/service"
	"storefront/internal/view"

	"github.com/gin-gonic/gin"
)

// getProfile returns the caller's stored delivery details
func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.bookings.Profile(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, "Failed to load profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.bookings.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Product not available", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// createBooking handles booking creation
func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.bookings.Create(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.respondError(c, "Failed to place booking", err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// getBooking returns the order-details view of one booking
func (h *Handler) getBooking(c *gin.Context) {
	isAdmin, err := h.isAdmin(c)
	if err != nil {
		h.respondError(c, "Failed to load order", err)
		return
	}

	order, err := h.bookings.Receipt(c.Request.Context(), userID(c), c.Param("id"), isAdmin)
	if err != nil {
		h.respondError(c, "Failed to load order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"display": view.RenderRow(order),
	})
}
