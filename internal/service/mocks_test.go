package service

import (
	"context"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockLookups struct {
	mock.Mock
}

func (m *mockLookups) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var p *models.UserProfile
	if v := args.Get(0); v != nil {
		p = v.(*models.UserProfile)
	}
	return p, args.Error(1)
}

func (m *mockLookups) GetProduct(ctx context.Context, productID string) (*models.ProductRecord, error) {
	args := m.Called(ctx, productID)
	var p *models.ProductRecord
	if v := args.Get(0); v != nil {
		p = v.(*models.ProductRecord)
	}
	return p, args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpdateBookingStatus(ctx context.Context, id string, status models.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockWriter) DeleteBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) ReleaseLock(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEvents) PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEvents) PublishBookingDeleted(ctx context.Context, event *models.BookingDeletedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEvents) PublishProfileUpdated(ctx context.Context, event *models.ProfileUpdatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) GetBooking(ctx context.Context, id string) (*models.RawBooking, error) {
	args := m.Called(ctx, id)
	var b *models.RawBooking
	if v := args.Get(0); v != nil {
		b = v.(*models.RawBooking)
	}
	return b, args.Error(1)
}

func (m *mockBookingStore) CreateBooking(ctx context.Context, booking *models.RawBooking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *mockBookingStore) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var p *models.UserProfile
	if v := args.Get(0); v != nil {
		p = v.(*models.UserProfile)
	}
	return p, args.Error(1)
}

func (m *mockBookingStore) UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *mockBookingStore) GetProduct(ctx context.Context, id string) (*models.ProductRecord, error) {
	args := m.Called(ctx, id)
	var p *models.ProductRecord
	if v := args.Get(0); v != nil {
		p = v.(*models.ProductRecord)
	}
	return p, args.Error(1)
}

type mockIdempotency struct {
	mock.Mock
}

func (m *mockIdempotency) ReserveIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockIdempotency) ForgetIdempotencyKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
