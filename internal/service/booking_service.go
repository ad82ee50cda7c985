package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrProductNotFound = errors.New("product not found")
)

const (
	maxQuantity    = 100
	idempotencyTTL = 24 * time.Hour
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// BookingStore is the part of the document store used to place bookings
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*models.RawBooking, error)
	CreateBooking(ctx context.Context, booking *models.RawBooking) error
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error
	GetProduct(ctx context.Context, id string) (*models.ProductRecord, error)
}

// Idempotency deduplicates retried booking requests
type Idempotency interface {
	ReserveIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// BookingEvents announces new bookings and profile changes
type BookingEvents interface {
	PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error
	PublishProfileUpdated(ctx context.Context, event *models.ProfileUpdatedEvent) error
}

// StaleMarker is told which user's orders changed
type StaleMarker interface {
	MarkStale(userID string)
}

// ProfileCache drops cached profiles
type ProfileCache interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// FieldError is one failed validation rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failed rule of a request
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid booking: " + strings.Join(msgs, "; ")
}

// CreateBookingRequest represents a request to place a booking
type CreateBookingRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	Quantity       int    `json:"quantity"`
	Subscribed     bool   `json:"subscribed"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateBookingResponse represents the response after placing a booking
type CreateBookingResponse struct {
	BookingID   string        `json:"booking_id"`
	Status      models.Status `json:"status"`
	ProductName string        `json:"product_name,omitempty"`
	TotalAmount float64       `json:"total_amount"`
	Duplicate   bool          `json:"duplicate,omitempty"`
}

// ProductView is a catalog entry as shown on the booking page
type ProductView struct {
	models.ProductRecord
	Subscribable bool `json:"subscribable"`
}

// BookingService handles the customer booking flow
type BookingService struct {
	store           BookingStore
	idempotency     Idempotency
	events          BookingEvents
	stale           StaleMarker
	profiles        ProfileCache
	denorm          *Denormalizer
	origin          string
	nonSubscribable map[string]bool
	logger          *zap.Logger
}

// NewBookingService creates a new booking service.
// idempotency, events, stale and profiles may be nil.
func NewBookingService(
	store BookingStore,
	idempotency Idempotency,
	events BookingEvents,
	stale StaleMarker,
	profiles ProfileCache,
	denorm *Denormalizer,
	origin string,
	nonSubscribable []string,
) *BookingService {
	ns := make(map[string]bool, len(nonSubscribable))
	for _, id := range nonSubscribable {
		ns[id] = true
	}
	return &BookingService{
		store:           store,
		idempotency:     idempotency,
		events:          events,
		stale:           stale,
		profiles:        profiles,
		denorm:          denorm,
		origin:          origin,
		nonSubscribable: ns,
		logger:          util.GetLogger(),
	}
}

// Profile returns the stored profile used to pre-fill the booking form.
// A user without a profile gets an empty one.
func (s *BookingService) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// Product returns a catalog entry with its subscription eligibility
func (s *BookingService) Product(ctx context.Context, productID string) (*ProductView, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &ProductView{
		ProductRecord: *product,
		Subscribable:  s.Subscribable(productID),
	}, nil
}

// Subscribable reports whether a product may be ordered as a subscription
func (s *BookingService) Subscribable(productID string) bool {
	return !s.nonSubscribable[productID]
}

// Create places a booking for a user
func (s *BookingService) Create(ctx context.Context, userID string, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Create")
	defer span.End()

	info := models.UserInfo{
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	}
	if err := validateBooking(info, req.Quantity); err != nil {
		return nil, err
	}

	product, err := s.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if req.Subscribed && !product.Subscribable {
		return nil, &ValidationError{Fields: []FieldError{{
			Field:   "subscribed",
			Message: "This product is not available as a subscription",
		}}}
	}

	bookingID := uuid.New().String()
	idemKey := ""
	if req.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = userID + ":" + req.IdempotencyKey
		existing, claimed, err := s.idempotency.ReserveIdempotencyKey(ctx, idemKey, bookingID, idempotencyTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency check failed, continuing without it", zap.Error(err))
			idemKey = ""
		case !claimed:
			s.logger.Info("Duplicate booking request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("booking_id", existing))
			return s.duplicate(ctx, existing), nil
		}
	}

	if err := s.saveProfileIfChanged(ctx, userID, info); err != nil {
		s.forget(ctx, idemKey)
		return nil, err
	}

	name := product.Name
	if name == "" {
		name = UnknownProduct
	}
	total := sanitizeAmount(float64(req.Quantity) * product.Price)

	booking := &models.RawBooking{
		ID:          bookingID,
		UserID:      userID,
		ProductID:   req.ProductID,
		ProductName: name,
		Quantity:    req.Quantity,
		TotalAmount: &total,
		Timestamp:   models.At(time.Now()),
		Subscribed:  req.Subscribed,
		Status:      string(models.StatusPending),
		UserInfo:    &info,
	}

	if err := s.store.CreateBooking(ctx, booking); err != nil {
		s.forget(ctx, idemKey)
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	orderType := "one-time"
	if booking.Subscribed {
		orderType = "subscription"
	}
	util.BookingsCreatedTotal.WithLabelValues(orderType).Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("user_id", userID),
		zap.String("product_id", booking.ProductID))

	if s.events != nil {
		event := &models.BookingCreatedEvent{
			BaseEvent:   s.baseEvent(models.EventTypeBookingCreated),
			BookingID:   booking.ID,
			UserID:      userID,
			ProductID:   booking.ProductID,
			Quantity:    booking.Quantity,
			TotalAmount: total,
			Subscribed:  booking.Subscribed,
		}
		if err := s.events.PublishBookingCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish BookingCreated event", zap.Error(err))
		}
	}
	if s.stale != nil {
		s.stale.MarkStale(userID)
	}

	return &CreateBookingResponse{
		BookingID:   booking.ID,
		Status:      models.StatusPending,
		ProductName: name,
		TotalAmount: total,
	}, nil
}

// Receipt returns the order-details view of a booking. Only the owner and
// admins may read it.
func (s *BookingService) Receipt(ctx context.Context, userID, bookingID string, isAdmin bool) (*models.OrderView, error) {
	raw, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if raw.UserID != userID && !isAdmin {
		return nil, ErrForbidden
	}

	view := s.denorm.DenormalizeWithImage(ctx, raw)
	return &view, nil
}

func (s *BookingService) duplicate(ctx context.Context, bookingID string) *CreateBookingResponse {
	resp := &CreateBookingResponse{BookingID: bookingID, Status: models.StatusPending, Duplicate: true}

	raw, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return resp
	}
	resp.Status = resolveStatus(raw.Status)
	resp.ProductName = raw.ProductName
	if raw.TotalAmount != nil {
		resp.TotalAmount = sanitizeAmount(*raw.TotalAmount)
	}
	return resp
}

func (s *BookingService) saveProfileIfChanged(ctx context.Context, userID string, info models.UserInfo) error {
	existing, err := s.store.GetUserProfile(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to get profile: %w", err)
	}
	if existing != nil && existing.Info() == info {
		return nil
	}

	profile := &models.UserProfile{
		UserID:  userID,
		Name:    info.Name,
		Phone:   info.Phone,
		Address: info.Address,
	}
	if err := s.store.UpsertUserProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Info("User profile updated", zap.String("user_id", userID))

	if s.profiles != nil {
		if err := s.profiles.InvalidateUser(ctx, userID); err != nil {
			s.logger.Warn("Failed to invalidate cached profile", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if s.events != nil {
		event := &models.ProfileUpdatedEvent{
			BaseEvent: s.baseEvent(models.EventTypeProfileUpdated),
			UserID:    userID,
		}
		if err := s.events.PublishProfileUpdated(ctx, event); err != nil {
			s.logger.Error("Failed to publish ProfileUpdated event", zap.Error(err))
		}
	}
	return nil
}

func (s *BookingService) forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.ForgetIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (s *BookingService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Origin:    s.origin,
		Timestamp: time.Now(),
	}
}

func validateBooking(info models.UserInfo, quantity int) error {
	var fields []FieldError
	if len([]rune(info.Name)) < 2 {
		fields = append(fields, FieldError{"name", "Name must be at least 2 characters long"})
	}
	if !phonePattern.MatchString(info.Phone) {
		fields = append(fields, FieldError{"phone", "Phone number must be exactly 10 digits"})
	}
	if len([]rune(info.Address)) < 10 {
		fields = append(fields, FieldError{"address", "Please provide a detailed delivery address"})
	}
	if quantity < 1 || quantity > maxQuantity {
		fields = append(fields, FieldError{"quantity", fmt.Sprintf("Quantity must be between 1 and %d", maxQuantity)})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
