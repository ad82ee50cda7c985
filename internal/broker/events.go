package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes one keyed event
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func bookingKey(id string) string { return "booking-" + id }
func userKey(id string) string    { return "user-" + id }

// PublishBookingCreated publishes BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingStatusChanged publishes BookingStatusChanged event
func (ep *EventPublisher) PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingDeleted publishes BookingDeleted event
func (ep *EventPublisher) PublishBookingDeleted(ctx context.Context, event *models.BookingDeletedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishProfileUpdated publishes ProfileUpdated event
func (ep *EventPublisher) PublishProfileUpdated(ctx context.Context, event *models.ProfileUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, userKey(event.UserID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBookingCreated       func(context.Context, *models.BookingCreatedEvent) error
	onBookingStatusChanged func(context.Context, *models.BookingStatusChangedEvent) error
	onBookingDeleted       func(context.Context, *models.BookingDeletedEvent) error
	onProfileUpdated       func(context.Context, *models.ProfileUpdatedEvent) error
	logger                 *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBookingCreated registers a handler for BookingCreated events
func (eh *EventHandler) OnBookingCreated(handler func(context.Context, *models.BookingCreatedEvent) error) {
	eh.onBookingCreated = handler
}

// OnBookingStatusChanged registers a handler for BookingStatusChanged events
func (eh *EventHandler) OnBookingStatusChanged(handler func(context.Context, *models.BookingStatusChangedEvent) error) {
	eh.onBookingStatusChanged = handler
}

// OnBookingDeleted registers a handler for BookingDeleted events
func (eh *EventHandler) OnBookingDeleted(handler func(context.Context, *models.BookingDeletedEvent) error) {
	eh.onBookingDeleted = handler
}

// OnProfileUpdated registers a handler for ProfileUpdated events
func (eh *EventHandler) OnProfileUpdated(handler func(context.Context, *models.ProfileUpdatedEvent) error) {
	eh.onProfileUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBookingCreated:
		if eh.onBookingCreated != nil {
			var event models.BookingCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingCreated event: %w", err)
			}
			return eh.onBookingCreated(ctx, &event)
		}

	case models.EventTypeBookingStatusChanged:
		if eh.onBookingStatusChanged != nil {
			var event models.BookingStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingStatusChanged event: %w", err)
			}
			return eh.onBookingStatusChanged(ctx, &event)
		}

	case models.EventTypeBookingDeleted:
		if eh.onBookingDeleted != nil {
			var event models.BookingDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingDeleted event: %w", err)
			}
			return eh.onBookingDeleted(ctx, &event)
		}

	case models.EventTypeProfileUpdated:
		if eh.onProfileUpdated != nil {
			var event models.ProfileUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProfileUpdated event: %w", err)
			}
			return eh.onProfileUpdated(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
