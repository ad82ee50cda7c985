package api

import (
	"errors"
	"net/http"

	"storefront/internal/export"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotConfirmed):
		return http.StatusPreconditionRequired
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, export.ErrNoOrders):
		return http.StatusNotFound
	case errors.Is(err, service.ErrMutationInFlight),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrStaleFetch):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {"error", "details"} with the status err maps to
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)

	body := gin.H{
		"error":   msg,
		"details": err.Error(),
	}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", c.FullPath()),
			zap.String("user_id", userID(c)),
			zap.Error(err))
	}
	c.JSON(status, body)
}
