package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Scope is the query boundary of an aggregation: every booking for admins,
// one user's bookings for customers.
type Scope struct {
	UserID string
}

// AdminScope covers all bookings
func AdminScope() Scope {
	return Scope{}
}

// CustomerScope covers the bookings of one user
func CustomerScope(userID string) Scope {
	return Scope{UserID: userID}
}

// IsAdmin reports whether the scope covers all bookings
func (s Scope) IsAdmin() bool {
	return s.UserID == ""
}

func (s Scope) String() string {
	if s.IsAdmin() {
		return "admin"
	}
	return "customer:" + s.UserID
}

func (s Scope) label() string {
	if s.IsAdmin() {
		return "admin"
	}
	return "customer"
}

// BookingSource lists raw bookings
type BookingSource interface {
	ListBookings(ctx context.Context) ([]models.RawBooking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.RawBooking, error)
}

// Aggregation is a fully resolved scope with its summary
type Aggregation struct {
	Orders  []models.OrderView
	Summary models.SummaryStats
}

// Aggregator fetches a scope and denormalizes every booking in it
type Aggregator struct {
	source      BookingSource
	denorm      *Denormalizer
	concurrency int
	logger      *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(source BookingSource, denorm *Denormalizer, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{
		source:      source,
		denorm:      denorm,
		concurrency: concurrency,
		logger:      util.GetLogger(),
	}
}

// FetchAll loads the bookings of a scope, newest first. Only the top-level
// fetch can fail; per-record problems end up as placeholders or degraded rows.
func (a *Aggregator) FetchAll(ctx context.Context, scope Scope) (*Aggregation, error) {
	ctx, span := util.StartSpan(ctx, "Aggregator.FetchAll")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AggregationLatency.WithLabelValues(scope.label()).Observe(time.Since(start).Seconds())
	}()

	var (
		raws []models.RawBooking
		err  error
	)
	if scope.IsAdmin() {
		raws, err = a.source.ListBookings(ctx)
	} else {
		raws, err = a.source.ListBookingsByUser(ctx, scope.UserID)
		if err == nil {
			sortNewestFirst(raws)
		}
	}
	if err != nil {
		util.FailSpan(span, err)
		a.logger.Error("Failed to fetch bookings",
			zap.String("scope", scope.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}

	orders := a.denormalizeAll(ctx, raws, !scope.IsAdmin())

	a.logger.Debug("Aggregated bookings",
		zap.String("scope", scope.String()),
		zap.Int("count", len(orders)))

	return &Aggregation{
		Orders:  orders,
		Summary: Summarize(orders),
	}, nil
}

// denormalizeAll resolves records concurrently while keeping source order
func (a *Aggregator) denormalizeAll(ctx context.Context, raws []models.RawBooking, withImage bool) []models.OrderView {
	orders := make([]models.OrderView, len(raws))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

	for i := range raws {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if withImage {
				orders[i] = a.denorm.DenormalizeWithImage(ctx, &raws[i])
			} else {
				orders[i] = a.denorm.Denormalize(ctx, &raws[i])
			}
		}(i)
	}

	wg.Wait()
	return orders
}

// sortNewestFirst orders bookings by creation instant, descending. Bookings
// without a usable instant sort as the epoch.
func sortNewestFirst(raws []models.RawBooking) {
	key := func(b *models.RawBooking) int64 {
		if !b.Timestamp.Valid {
			return 0
		}
		return b.Timestamp.Time.UnixNano()
	}
	sort.SliceStable(raws, func(i, j int) bool {
		return key(&raws[i]) > key(&raws[j])
	})
}
