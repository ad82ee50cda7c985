package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/export"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/view"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// filterAll is the selector value the order pages send for "no filter"
const filterAll = "all"

type ordersResponse struct {
	view.Table
	Total      int                    `json:"total"`
	Criteria   service.FilterCriteria `json:"criteria"`
	Generation uint64                 `json:"generation"`
	FetchedAt  time.Time              `json:"fetched_at"`
	Stale      bool                   `json:"stale"`
}

func newOrdersResponse(snap *service.Snapshot) ordersResponse {
	return ordersResponse{
		Table:      view.Render(snap.Orders, snap.Summary),
		Total:      snap.Total,
		Criteria:   snap.Criteria,
		Generation: snap.Generation,
		FetchedAt:  snap.FetchedAt,
		Stale:      snap.Stale,
	}
}

type updateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Confirm bool   `json:"confirm"`
}

// parseCriteria reads subscription, status, date (YYYY-MM-DD) and q
func (h *Handler) parseCriteria(c *gin.Context) (service.FilterCriteria, error) {
	var criteria service.FilterCriteria

	if v := c.Query("subscription"); v != "" && v != filterAll {
		st, err := service.ParseSubscriptionType(v)
		if err != nil {
			return criteria, err
		}
		criteria.Subscription = st
	}

	if v := c.Query("status"); v != "" && v != filterAll {
		status, ok := models.ParseStatus(v)
		if !ok {
			return criteria, fmt.Errorf("%w: %q", service.ErrInvalidStatus, v)
		}
		criteria.Status = status
	}

	if v := c.Query("date"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return criteria, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", v)
		}
		criteria.Date = &day
	}

	criteria.Search = c.Query("q")
	return criteria, nil
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}

// load makes sure the session holds a collection. A failed refresh of an
// already loaded session keeps serving the previous collection.
func (h *Handler) load(ctx context.Context, sess *service.Session, refresh bool) error {
	var (
		snap *service.Snapshot
		err  error
	)
	if refresh {
		snap, err = sess.Refresh(ctx)
	} else {
		snap, err = sess.Current(ctx)
	}
	if err == nil || errors.Is(err, service.ErrStaleFetch) {
		return nil
	}
	if snap != nil && snap.Loaded {
		h.logger.Warn("Serving previous orders after failed refresh",
			zap.String("scope", sess.Scope().String()),
			zap.Error(err))
		return nil
	}
	return err
}

// listOrders returns the filtered admin order table
func (h *Handler) listOrders(c *gin.Context) {
	criteria, err := h.parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter",
			"details": err.Error(),
		})
		return
	}

	sess := h.sessions.Get(service.AdminScope())
	if err := h.load(c.Request.Context(), sess, queryBool(c, "refresh")); err != nil {
		h.respondError(c, "Failed to load orders", err)
		return
	}

	c.JSON(http.StatusOK, newOrdersResponse(sess.Apply(criteria)))
}

// updateOrderStatus moves an order to a new status
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	criteria, err := h.parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter",
			"details": err.Error(),
		})
		return
	}

	sess := h.sessions.Get(service.AdminScope())
	_, err = sess.UpdateStatus(c.Request.Context(), c.Param("id"), models.Status(req.Status), service.Confirmed(req.Confirm))
	if err != nil {
		h.respondError(c, "Failed to update order status", err)
		return
	}

	c.JSON(http.StatusOK, newOrdersResponse(sess.Apply(criteria)))
}

// deleteOrder removes an order. Requires ?confirm=true.
func (h *Handler) deleteOrder(c *gin.Context) {
	criteria, err := h.parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter",
			"details": err.Error(),
		})
		return
	}

	sess := h.sessions.Get(service.AdminScope())
	if _, err := sess.Remove(c.Request.Context(), c.Param("id"), service.Confirmed(queryBool(c, "confirm"))); err != nil {
		h.respondError(c, "Failed to delete order", err)
		return
	}

	c.JSON(http.StatusOK, newOrdersResponse(sess.Apply(criteria)))
}

// exportOrders downloads the filtered view as a spreadsheet
func (h *Handler) exportOrders(c *gin.Context) {
	criteria, err := h.parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter",
			"details": err.Error(),
		})
		return
	}

	sess := h.sessions.Get(service.AdminScope())
	if err := h.load(c.Request.Context(), sess, false); err != nil {
		h.respondError(c, "Failed to load orders", err)
		return
	}
	snap := sess.Apply(criteria)

	var buf bytes.Buffer
	if err := export.Write(c.Request.Context(), &buf, snap.Orders); err != nil {
		h.respondError(c, exportFailure(err), err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(time.Now())))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func exportFailure(err error) string {
	if errors.Is(err, export.ErrNoOrders) {
		return "No orders to download"
	}
	return "Failed to export orders"
}

// listMyOrders returns the caller's orders, newest first
func (h *Handler) listMyOrders(c *gin.Context) {
	sess := h.sessions.Get(service.CustomerScope(userID(c)))
	if err := h.load(c.Request.Context(), sess, queryBool(c, "refresh")); err != nil {
		h.respondError(c, "Failed to load orders", err)
		return
	}

	c.JSON(http.StatusOK, newOrdersResponse(sess.Apply(service.FilterCriteria{})))
}

// cancelMyOrder cancels one of the caller's pending orders. Requires ?confirm=true.
func (h *Handler) cancelMyOrder(c *gin.Context) {
	sess := h.sessions.Get(service.CustomerScope(userID(c)))
	if _, err := sess.CustomerCancel(c.Request.Context(), c.Param("id"), service.Confirmed(queryBool(c, "confirm"))); err != nil {
		h.respondError(c, "Failed to cancel order", err)
		return
	}

	c.JSON(http.StatusOK, newOrdersResponse(sess.Apply(service.FilterCriteria{})))
}
