package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Consumer delivers broker messages to a handler
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventWorker keeps this instance's sessions and caches in step with
// bookings changed by other instances
type EventWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	origin       string
	stale        service.StaleMarker
	profiles     service.ProfileCache
	logger       *zap.Logger
}

// NewEventWorker creates a new event worker. Events published by origin are ignored.
func NewEventWorker(
	consumer Consumer,
	origin string,
	stale service.StaleMarker,
	profiles service.ProfileCache,
) *EventWorker {
	w := &EventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		origin:       origin,
		stale:        stale,
		profiles:     profiles,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnBookingCreated(func(_ context.Context, e *models.BookingCreatedEvent) error {
		w.bookingChanged(e.BaseEvent, e.BookingID, e.UserID)
		return nil
	})
	w.eventHandler.OnBookingStatusChanged(func(_ context.Context, e *models.BookingStatusChangedEvent) error {
		w.bookingChanged(e.BaseEvent, e.BookingID, e.UserID)
		return nil
	})
	w.eventHandler.OnBookingDeleted(func(_ context.Context, e *models.BookingDeletedEvent) error {
		w.bookingChanged(e.BaseEvent, e.BookingID, e.UserID)
		return nil
	})
	w.eventHandler.OnProfileUpdated(w.profileUpdated)

	return w
}

// Start starts the worker
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker", zap.String("origin", w.origin))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EventWorker) Stop() error {
	w.logger.Info("Stopping event worker")
	return w.consumer.Close()
}

func (w *EventWorker) local(e models.BaseEvent) bool {
	return e.Origin == w.origin
}

func (w *EventWorker) bookingChanged(e models.BaseEvent, bookingID, userID string) {
	if w.local(e) {
		return
	}
	w.logger.Debug("Remote booking change",
		zap.String("event_type", e.EventType),
		zap.String("booking_id", bookingID),
		zap.String("user_id", userID))
	// an empty user id marks every session
	w.stale.MarkStale(userID)
}

func (w *EventWorker) profileUpdated(ctx context.Context, e *models.ProfileUpdatedEvent) error {
	if w.local(e.BaseEvent) {
		return nil
	}
	if w.profiles != nil {
		if err := w.profiles.InvalidateUser(ctx, e.UserID); err != nil {
			w.logger.Warn("Failed to invalidate cached profile",
				zap.String("user_id", e.UserID),
				zap.Error(err))
			return err
		}
	}
	w.stale.MarkStale(e.UserID)
	return nil
}
