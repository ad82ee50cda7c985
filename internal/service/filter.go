package service

import (
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
)

// SubscriptionType narrows orders to subscriptions or one-time purchases
type SubscriptionType string

// Subscription filter values; the zero value matches both
const (
	SubscriptionAny  SubscriptionType = ""
	SubscriptionOnly SubscriptionType = "subscription"
	OneTimeOnly      SubscriptionType = "one-time"
)

// ParseSubscriptionType validates a subscription filter value
func ParseSubscriptionType(s string) (SubscriptionType, error) {
	switch t := SubscriptionType(strings.ToLower(strings.TrimSpace(s))); t {
	case SubscriptionAny, SubscriptionOnly, OneTimeOnly:
		return t, nil
	}
	return "", fmt.Errorf("unknown subscription type %q", s)
}

// FilterCriteria is a conjunction of optional predicates. Zero fields do not
// constrain.
type FilterCriteria struct {
	Subscription SubscriptionType `json:"subscription,omitempty"`
	Status       models.Status    `json:"status,omitempty"`
	// Date selects one calendar day in the location of the value
	Date   *time.Time `json:"date,omitempty"`
	Search string     `json:"search,omitempty"`
}

// IsEmpty reports whether no predicate is set
func (c FilterCriteria) IsEmpty() bool {
	return c.Subscription == SubscriptionAny &&
		c.Status == "" &&
		c.Date == nil &&
		strings.TrimSpace(c.Search) == ""
}

// ApplyFilters returns the orders matching every set predicate, in their
// original order. The input slice is not modified.
func ApplyFilters(orders []models.OrderView, c FilterCriteria) []models.OrderView {
	preds := c.predicates()
	out := make([]models.OrderView, 0, len(orders))
	for i := range orders {
		if matchesAll(&orders[i], preds) {
			out = append(out, orders[i])
		}
	}
	return out
}

type predicate func(o *models.OrderView) bool

func matchesAll(o *models.OrderView, preds []predicate) bool {
	for _, p := range preds {
		if !p(o) {
			return false
		}
	}
	return true
}

func (c FilterCriteria) predicates() []predicate {
	var preds []predicate

	if c.Subscription != SubscriptionAny {
		want := c.Subscription == SubscriptionOnly
		preds = append(preds, func(o *models.OrderView) bool {
			return o.Subscribed == want
		})
	}

	if c.Status != "" {
		status := c.Status
		preds = append(preds, func(o *models.OrderView) bool {
			return o.Status == status
		})
	}

	if c.Date != nil {
		start, end := dayBounds(*c.Date)
		preds = append(preds, func(o *models.OrderView) bool {
			if o.Timestamp == nil {
				return false
			}
			return !o.Timestamp.Before(start) && o.Timestamp.Before(end)
		})
	}

	if term := strings.ToLower(strings.TrimSpace(c.Search)); term != "" {
		preds = append(preds, func(o *models.OrderView) bool {
			return containsFold(o.UserName, term) ||
				containsFold(o.ProductName, term) ||
				strings.Contains(o.PhoneNo, term) ||
				containsFold(o.UserAddress, term)
		})
	}

	return preds
}

// dayBounds returns [midnight, next midnight) of the calendar day of t
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

// Summarize counts orders and sums their amounts
func Summarize(orders []models.OrderView) models.SummaryStats {
	stats := models.SummaryStats{Count: len(orders)}
	for i := range orders {
		stats.TotalRevenue += orders[i].TotalAmount
	}
	return stats
}
