package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func amount(v float64) *float64 { return &v }

func TestDenormalizeUsesEmbeddedFields(t *testing.T) {
	lookups := &mockLookups{}
	d := NewDenormalizer(lookups, ist, "/img/default.jpg")

	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:          "b1",
		UserID:      "u1",
		ProductID:   "milk-1l",
		ProductName: "Milk 1L",
		Quantity:    2,
		TotalAmount: amount(120),
		Timestamp:   models.At(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)),
		Subscribed:  true,
		Status:      "confirmed",
		UserInfo:    &models.UserInfo{Name: "Asha", Phone: "9876543210", Address: "12 Lake Road, Pune"},
	})

	assert.Equal(t, "Asha", view.UserName)
	assert.Equal(t, "9876543210", view.PhoneNo)
	assert.Equal(t, "12 Lake Road, Pune", view.UserAddress)
	assert.Equal(t, "Milk 1L", view.ProductName)
	assert.Equal(t, 120.0, view.TotalAmount)
	assert.Equal(t, "02/01/2024, 03:30 pm", view.BookingDate)
	assert.Equal(t, models.StatusConfirmed, view.Status)
	require.NotNil(t, view.Timestamp)
	assert.Empty(t, view.ProductImage)
	lookups.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	lookups.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
}

func TestDenormalizeFallsBackToProfileAndProduct(t *testing.T) {
	lookups := &mockLookups{}
	lookups.On("GetUser", mock.Anything, "u1").
		Return(&models.UserProfile{UserID: "u1", Name: "Ramesh", Phone: "", Address: "4 Hill View, Nashik"}, nil)
	lookups.On("GetProduct", mock.Anything, "curd").
		Return(&models.ProductRecord{ID: "curd", Name: "Curd 500g", Price: 45}, nil)

	d := NewDenormalizer(lookups, ist, "")
	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:        "b2",
		UserID:    "u1",
		ProductID: "curd",
		Quantity:  3,
	})

	assert.Equal(t, "Ramesh", view.UserName)
	assert.Equal(t, NotProvided, view.PhoneNo)
	assert.Equal(t, "Curd 500g", view.ProductName)
	assert.Equal(t, 135.0, view.TotalAmount)
	assert.Equal(t, DateMissing, view.BookingDate)
	assert.Nil(t, view.Timestamp)
	assert.Equal(t, models.StatusPending, view.Status)
}

func TestDenormalizeSentinelsWhenLookupsFail(t *testing.T) {
	lookups := &mockLookups{}
	lookups.On("GetUser", mock.Anything, "u1").Return(nil, errors.New("unavailable"))
	lookups.On("GetProduct", mock.Anything, "curd").Return(nil, fmt.Errorf("product curd: %w", store.ErrNotFound))

	d := NewDenormalizer(lookups, ist, "")
	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:        "b3",
		UserID:    "u1",
		ProductID: "curd",
		Quantity:  1,
		Status:    "pending",
	})

	assert.Equal(t, UnknownUser, view.UserName)
	assert.Equal(t, NotProvided, view.UserAddress)
	assert.Equal(t, NotProvided, view.PhoneNo)
	assert.Equal(t, UnknownProduct, view.ProductName)
	assert.Equal(t, 0.0, view.TotalAmount)
	assert.Equal(t, models.StatusPending, view.Status)
}

func TestDenormalizeRetriesPriceOnce(t *testing.T) {
	lookups := &mockLookups{}
	lookups.On("GetProduct", mock.Anything, "milk-1l").
		Return(&models.ProductRecord{ID: "milk-1l", Name: "Milk 1L", Price: 60}, nil).Once()

	d := NewDenormalizer(lookups, ist, "")
	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:          "b4",
		UserID:      "u1",
		ProductID:   "milk-1l",
		ProductName: "Milk 1L",
		Quantity:    2,
		UserInfo:    &models.UserInfo{Name: "Asha"},
	})

	assert.Equal(t, 120.0, view.TotalAmount)
	lookups.AssertNumberOfCalls(t, "GetProduct", 1)
}

func TestDenormalizeAmountNeverNegative(t *testing.T) {
	d := NewDenormalizer(&mockLookups{}, ist, "")

	for _, v := range []float64{-50, math.NaN(), math.Inf(1)} {
		view := d.Denormalize(context.Background(), &models.RawBooking{
			ID:          "b5",
			ProductName: "Ghee 0.5L",
			TotalAmount: amount(v),
			UserInfo:    &models.UserInfo{Name: "Asha"},
		})
		assert.Equal(t, 0.0, view.TotalAmount)
		assert.Equal(t, UnknownUser, view.UserID)
	}
}

func TestDenormalizeDegradedOnDecodeError(t *testing.T) {
	d := NewDenormalizer(&mockLookups{}, ist, "")

	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:        "broken",
		DecodeErr: errors.New("cannot decode string into bool"),
	})

	assert.Equal(t, "broken", view.ID)
	assert.Equal(t, ErrorLoading, view.UserName)
	assert.Equal(t, ErrorLoading, view.ProductName)
	assert.Equal(t, ErrorLoading, view.PhoneNo)
	assert.Equal(t, ErrorLoading, view.UserAddress)
	assert.Equal(t, models.StatusError, view.Status)
	assert.Equal(t, 0.0, view.TotalAmount)
}

type panickingLookups struct{}

func (panickingLookups) GetUser(context.Context, string) (*models.UserProfile, error) {
	panic("boom")
}

func (panickingLookups) GetProduct(context.Context, string) (*models.ProductRecord, error) {
	panic("boom")
}

func TestDenormalizeRecoversFromPanic(t *testing.T) {
	d := NewDenormalizer(panickingLookups{}, ist, "")

	view := d.Denormalize(context.Background(), &models.RawBooking{
		ID:        "b6",
		UserID:    "u1",
		ProductID: "curd",
		Quantity:  4,
		Timestamp: models.Instant{Raw: "yesterday"},
	})

	assert.Equal(t, ErrorLoading, view.UserName)
	assert.Equal(t, models.StatusError, view.Status)
	assert.Equal(t, 4, view.Quantity)
	assert.Equal(t, DateInvalid, view.BookingDate)
}

func TestDenormalizeWithImage(t *testing.T) {
	lookups := &mockLookups{}
	lookups.On("GetProduct", mock.Anything, "milk-1l").
		Return(&models.ProductRecord{ID: "milk-1l", Name: "Milk 1L", Price: 60, Image: "/img/milk.jpg"}, nil)
	lookups.On("GetProduct", mock.Anything, "gone").Return(nil, store.ErrNotFound)

	d := NewDenormalizer(lookups, ist, "/img/default.jpg")
	info := &models.UserInfo{Name: "Asha"}

	view := d.DenormalizeWithImage(context.Background(), &models.RawBooking{
		ID: "b7", ProductID: "milk-1l", ProductName: "Milk 1L", Quantity: 1, TotalAmount: amount(60), UserInfo: info,
	})
	assert.Equal(t, "/img/milk.jpg", view.ProductImage)

	view = d.DenormalizeWithImage(context.Background(), &models.RawBooking{
		ID: "b8", ProductID: "gone", ProductName: "Paneer", TotalAmount: amount(90), UserInfo: info,
	})
	assert.Equal(t, "/img/default.jpg", view.ProductImage)
	assert.Equal(t, 90.0, view.TotalAmount)
}

func TestFormatInstant(t *testing.T) {
	assert.Equal(t, DateMissing, FormatInstant(models.Instant{}, ist))
	assert.Equal(t, DateInvalid, FormatInstant(models.Instant{Raw: "not a date"}, ist))
	assert.Equal(t, "01/01/2024, 11:59 pm",
		FormatInstant(models.At(time.Date(2024, 1, 1, 18, 29, 0, 0, time.UTC)), ist))
	assert.Equal(t, "02/01/2024, 12:01 am",
		FormatInstant(models.At(time.Date(2024, 1, 1, 18, 31, 0, 0, time.UTC)), ist))
}

func TestResolveStatus(t *testing.T) {
	assert.Equal(t, models.StatusPending, resolveStatus(""))
	assert.Equal(t, models.StatusDelivered, resolveStatus("delivered"))
	assert.Equal(t, models.StatusError, resolveStatus("shipped"))
	assert.Equal(t, models.StatusError, resolveStatus("error"))
}
