package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a booking
type Status string

// Booking statuses
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"

	// StatusError marks a row that could not be resolved. It is never stored.
	StatusError Status = "error"
)

// Statuses lists the lifecycle statuses in display order
var Statuses = []Status{StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled}

// ParseStatus accepts only lifecycle statuses
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// Label returns the human readable status name
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusConfirmed:
		return "Confirmed"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	case StatusError:
		return "Error"
	}
	return string(s)
}

// Instant is a creation timestamp that may be missing or unparseable
type Instant struct {
	Time  time.Time
	Raw   string
	Valid bool
}

// At returns a valid instant
func At(t time.Time) Instant {
	return Instant{Time: t, Valid: true}
}

// Missing reports whether no timestamp was stored at all
func (i Instant) Missing() bool {
	return !i.Valid && i.Raw == ""
}

// MarshalJSON encodes valid instants as RFC3339 and everything else as null
func (i Instant) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(i.Time)
}

// UserInfo is the delivery contact snapshot embedded in a booking
type UserInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UserProfile is the stored profile of a customer, keyed by user id
type UserProfile struct {
	UserID  string `db:"user_id" json:"user_id"`
	Name    string `db:"name" json:"name"`
	Phone   string `db:"phone" json:"phone"`
	Address string `db:"address" json:"address"`
}

// Info returns the profile as a booking snapshot
func (p UserProfile) Info() UserInfo {
	return UserInfo{Name: p.Name, Phone: p.Phone, Address: p.Address}
}

// ProductRecord is a catalog entry
type ProductRecord struct {
	ID    string  `db:"id" json:"id"`
	Name  string  `db:"product_name" json:"product_name"`
	Price float64 `db:"price" json:"price"`
	Image string  `db:"product_img" json:"product_img"`
}

// RawBooking is a booking as stored in the booking-info collection
type RawBooking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName,omitempty"`
	Quantity    int       `json:"quantity"`
	TotalAmount *float64  `json:"totalAmount,omitempty"`
	Timestamp   Instant   `json:"timestamp"`
	Subscribed  bool      `json:"subscribed"`
	Status      string    `json:"status"`
	UserInfo    *UserInfo `json:"userInfo,omitempty"`

	// DecodeErr is set when the stored document could not be decoded
	DecodeErr error `json:"-"`
}

// OrderView is a booking with user and product references resolved for display
type OrderView struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	UserName     string     `json:"user_name"`
	ProductName  string     `json:"product_name"`
	ProductImage string     `json:"product_image,omitempty"`
	Quantity     int        `json:"quantity"`
	TotalAmount  float64    `json:"total_amount"`
	UserAddress  string     `json:"user_address"`
	PhoneNo      string     `json:"phone_no"`
	BookingDate  string     `json:"booking_date"`
	Timestamp    *time.Time `json:"timestamp"`
	Subscribed   bool       `json:"subscribed"`
	Status       Status     `json:"status"`
}

// OrderType returns the booking type label
func (o OrderView) OrderType() string {
	if o.Subscribed {
		return "Subscription"
	}
	return "One-time"
}

// SummaryStats aggregates whatever collection is currently displayed
type SummaryStats struct {
	Count        int     `json:"count"`
	TotalRevenue float64 `json:"total_revenue"`
}
