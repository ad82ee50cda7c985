package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Placeholder values for fields that could not be resolved
const (
	UnknownUser    = "Unknown"
	NotProvided    = "Not provided"
	UnknownProduct = "Unknown Product"
	ErrorLoading   = "Error loading"
	DateMissing    = "N/A"
	DateInvalid    = "Invalid Date"
)

// DisplayLayout is the booking date format shown to admins
const DisplayLayout = "02/01/2006, 03:04 pm"

// Lookups resolves the user and product a booking refers to
type Lookups interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
	GetProduct(ctx context.Context, productID string) (*models.ProductRecord, error)
}

// Denormalizer turns raw bookings into display rows
type Denormalizer struct {
	lookups      Lookups
	loc          *time.Location
	defaultImage string
	logger       *zap.Logger
}

// NewDenormalizer creates a new denormalizer
func NewDenormalizer(lookups Lookups, loc *time.Location, defaultImage string) *Denormalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Denormalizer{
		lookups:      lookups,
		loc:          loc,
		defaultImage: defaultImage,
		logger:       util.GetLogger(),
	}
}

// Denormalize resolves a booking the way the admin console lists it.
// It never fails: unresolvable references fall back to placeholders and
// an unexpected failure yields a degraded row.
func (d *Denormalizer) Denormalize(ctx context.Context, raw *models.RawBooking) models.OrderView {
	return d.resolve(ctx, raw, false)
}

// DenormalizeWithImage also resolves the product image shown on order cards
func (d *Denormalizer) DenormalizeWithImage(ctx context.Context, raw *models.RawBooking) models.OrderView {
	return d.resolve(ctx, raw, true)
}

func (d *Denormalizer) resolve(ctx context.Context, raw *models.RawBooking, withImage bool) (view models.OrderView) {
	defer func() {
		if r := recover(); r != nil {
			view = d.degraded(raw, fmt.Errorf("panic: %v", r))
		}
	}()

	if raw.DecodeErr != nil {
		return d.degraded(raw, raw.DecodeErr)
	}

	view = d.base(raw)
	view.Status = resolveStatus(raw.Status)
	view.UserName, view.UserAddress, view.PhoneNo = d.identity(ctx, raw)

	quantity := raw.Quantity
	if quantity < 0 {
		quantity = 0
	}
	view.Quantity = quantity

	var product *models.ProductRecord
	view.ProductName = UnknownProduct
	var amount float64

	if raw.ProductName != "" {
		view.ProductName = raw.ProductName
		if raw.TotalAmount != nil {
			amount = *raw.TotalAmount
		}
	} else if p := d.product(ctx, raw.ProductID); p != nil {
		product = p
		if p.Name != "" {
			view.ProductName = p.Name
		}
		amount = float64(quantity) * p.Price
	}

	// second attempt when nothing yielded a price
	if sanitizeAmount(amount) == 0 && quantity > 0 {
		if p := d.product(ctx, raw.ProductID); p != nil {
			product = p
			amount = float64(quantity) * p.Price
		}
	}
	view.TotalAmount = sanitizeAmount(amount)

	if withImage {
		if product == nil {
			product = d.product(ctx, raw.ProductID)
		}
		view.ProductImage = d.defaultImage
		if product != nil && product.Image != "" {
			view.ProductImage = product.Image
		}
	}

	return view
}

func (d *Denormalizer) base(raw *models.RawBooking) models.OrderView {
	view := models.OrderView{
		ID:          raw.ID,
		UserID:      raw.UserID,
		Quantity:    raw.Quantity,
		BookingDate: FormatInstant(raw.Timestamp, d.loc),
		Subscribed:  raw.Subscribed,
	}
	if view.UserID == "" {
		view.UserID = UnknownUser
	}
	if raw.Timestamp.Valid {
		ts := raw.Timestamp.Time
		view.Timestamp = &ts
	}
	return view
}

func (d *Denormalizer) degraded(raw *models.RawBooking, cause error) models.OrderView {
	util.DegradedRecordsTotal.Inc()
	d.logger.Warn("Rendering degraded order row",
		zap.String("booking_id", raw.ID),
		zap.Error(cause))

	view := d.base(raw)
	if view.Quantity < 0 {
		view.Quantity = 0
	}
	view.UserName = ErrorLoading
	view.ProductName = ErrorLoading
	view.UserAddress = ErrorLoading
	view.PhoneNo = ErrorLoading
	view.Status = models.StatusError
	return view
}

func (d *Denormalizer) identity(ctx context.Context, raw *models.RawBooking) (name, address, phone string) {
	name, address, phone = UnknownUser, NotProvided, NotProvided

	var info *models.UserInfo
	if raw.UserInfo != nil {
		info = raw.UserInfo
	} else if raw.UserID != "" {
		profile, err := d.lookups.GetUser(ctx, raw.UserID)
		if err != nil {
			d.lookupFailed("user", raw.UserID, err)
		} else if profile != nil {
			i := profile.Info()
			info = &i
		}
	}

	if info != nil {
		name = orDefault(info.Name, UnknownUser)
		address = orDefault(info.Address, NotProvided)
		phone = orDefault(info.Phone, NotProvided)
	}
	return name, address, phone
}

func (d *Denormalizer) product(ctx context.Context, productID string) *models.ProductRecord {
	if productID == "" {
		return nil
	}
	p, err := d.lookups.GetProduct(ctx, productID)
	if err != nil {
		d.lookupFailed("product", productID, err)
		return nil
	}
	return p
}

func (d *Denormalizer) lookupFailed(kind, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	util.LookupFailuresTotal.WithLabelValues(kind).Inc()
	d.logger.Warn("Lookup failed, using placeholders",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Error(err))
}

// FormatInstant renders a booking instant in the display timezone
func FormatInstant(i models.Instant, loc *time.Location) string {
	if i.Missing() {
		return DateMissing
	}
	if !i.Valid {
		return DateInvalid
	}
	return i.Time.In(loc).Format(DisplayLayout)
}

func resolveStatus(s string) models.Status {
	if s == "" {
		return models.StatusPending
	}
	if status, ok := models.ParseStatus(s); ok {
		return status
	}
	return models.StatusError
}

func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
