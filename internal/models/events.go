package models

import "time"

// Event types
const (
	EventTypeBookingCreated       = "BOOKING_CREATED"
	EventTypeBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventTypeBookingDeleted       = "BOOKING_DELETED"
	EventTypeProfileUpdated       = "PROFILE_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a customer places a booking
type BookingCreatedEvent struct {
	BaseEvent
	BookingID   string  `json:"booking_id"`
	UserID      string  `json:"user_id"`
	ProductID   string  `json:"product_id"`
	Quantity    int     `json:"quantity"`
	TotalAmount float64 `json:"total_amount"`
	Subscribed  bool    `json:"subscribed"`
}

// BookingStatusChangedEvent published when an admin moves a booking to a new status
type BookingStatusChangedEvent struct {
	BaseEvent
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	From      Status `json:"from"`
	To        Status `json:"to"`
}

// BookingDeletedEvent published when a booking is removed from the store
type BookingDeletedEvent struct {
	BaseEvent
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

// ProfileUpdatedEvent published when a customer profile changes
type ProfileUpdatedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}
