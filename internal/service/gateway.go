package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingWriter applies writes to stored bookings
type BookingWriter interface {
	UpdateBookingStatus(ctx context.Context, id string, status models.Status) error
	DeleteBooking(ctx context.Context, id string) error
}

// Locker serializes writes to one booking across instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// MutationEvents announces applied writes
type MutationEvents interface {
	PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error
	PublishBookingDeleted(ctx context.Context, event *models.BookingDeletedEvent) error
}

// Deletion reasons
const (
	ReasonAdminDelete    = "admin_delete"
	ReasonAdminCancel    = "admin_cancel"
	ReasonCustomerCancel = "customer_cancel"
)

// Gateway writes single-booking mutations through to the store
type Gateway struct {
	writer  BookingWriter
	locker  Locker
	events  MutationEvents
	origin  string
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewGateway creates a new mutation gateway. locker and events may be nil.
func NewGateway(writer BookingWriter, locker Locker, events MutationEvents, origin string, lockTTL time.Duration) *Gateway {
	return &Gateway{
		writer:  writer,
		locker:  locker,
		events:  events,
		origin:  origin,
		lockTTL: lockTTL,
		logger:  util.GetLogger(),
	}
}

// SetStatus moves a booking to a new status
func (g *Gateway) SetStatus(ctx context.Context, order models.OrderView, to models.Status) error {
	ctx, span := util.StartSpan(ctx, "Gateway.SetStatus")
	defer span.End()

	err := g.withLock(ctx, order.ID, func() error {
		return g.writer.UpdateBookingStatus(ctx, order.ID, to)
	})
	if err != nil {
		util.FailSpan(span, err)
		util.MutationFailuresTotal.WithLabelValues("status").Inc()
		g.logger.Error("Failed to update booking status",
			zap.String("booking_id", order.ID),
			zap.String("status", string(to)),
			zap.Error(err))
		return fmt.Errorf("failed to update booking %s: %w", order.ID, err)
	}

	util.BookingStatusUpdatesTotal.WithLabelValues(string(to)).Inc()
	g.logger.Info("Booking status updated",
		zap.String("booking_id", order.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)))

	if g.events != nil {
		event := &models.BookingStatusChangedEvent{
			BaseEvent: g.baseEvent(models.EventTypeBookingStatusChanged),
			BookingID: order.ID,
			UserID:    order.UserID,
			From:      order.Status,
			To:        to,
		}
		if err := g.events.PublishBookingStatusChanged(ctx, event); err != nil {
			g.logger.Error("Failed to publish BookingStatusChanged event", zap.Error(err))
		}
	}
	return nil
}

// Delete removes a booking from the store
func (g *Gateway) Delete(ctx context.Context, order models.OrderView, reason string) error {
	ctx, span := util.StartSpan(ctx, "Gateway.Delete")
	defer span.End()

	err := g.withLock(ctx, order.ID, func() error {
		return g.writer.DeleteBooking(ctx, order.ID)
	})
	if err != nil {
		util.FailSpan(span, err)
		util.MutationFailuresTotal.WithLabelValues("delete").Inc()
		g.logger.Error("Failed to delete booking",
			zap.String("booking_id", order.ID),
			zap.String("reason", reason),
			zap.Error(err))
		return fmt.Errorf("failed to delete booking %s: %w", order.ID, err)
	}

	util.BookingsDeletedTotal.WithLabelValues(reason).Inc()
	g.logger.Info("Booking deleted",
		zap.String("booking_id", order.ID),
		zap.String("reason", reason))

	if g.events != nil {
		event := &models.BookingDeletedEvent{
			BaseEvent: g.baseEvent(models.EventTypeBookingDeleted),
			BookingID: order.ID,
			UserID:    order.UserID,
			Reason:    reason,
		}
		if err := g.events.PublishBookingDeleted(ctx, event); err != nil {
			g.logger.Error("Failed to publish BookingDeleted event", zap.Error(err))
		}
	}
	return nil
}

func (g *Gateway) withLock(ctx context.Context, bookingID string, fn func() error) error {
	if g.locker == nil {
		return fn()
	}

	key := "booking:" + bookingID
	ok, err := g.locker.AcquireLock(ctx, key, g.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ErrMutationInFlight
	}
	defer func() {
		if err := g.locker.ReleaseLock(context.Background(), key); err != nil {
			g.logger.Warn("Failed to release booking lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn()
}

func (g *Gateway) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Origin:    g.origin,
		Timestamp: time.Now(),
	}
}
