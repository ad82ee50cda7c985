package view

import (
	"math"
	"strconv"
	"strings"

	"storefront/internal/models"
)

// NoOrdersMessage fills the placeholder row of an empty table
const NoOrdersMessage = "No orders found"

// Row is one rendered order. A placeholder row carries only Message.
type Row struct {
	ID          string        `json:"id,omitempty"`
	ShortID     string        `json:"short_id,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
	Customer    string        `json:"customer,omitempty"`
	Product     string        `json:"product,omitempty"`
	Image       string        `json:"image,omitempty"`
	Quantity    int           `json:"quantity,omitempty"`
	Amount      string        `json:"amount,omitempty"`
	Address     string        `json:"address,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	Date        string        `json:"date,omitempty"`
	OrderType   string        `json:"order_type,omitempty"`
	Subscribed  bool          `json:"subscribed,omitempty"`
	Status      models.Status `json:"status,omitempty"`
	StatusLabel string        `json:"status_label,omitempty"`
	Cancellable bool          `json:"cancellable,omitempty"`

	Placeholder bool   `json:"placeholder,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Summary is the rendered count and revenue
type Summary struct {
	Count   int    `json:"count"`
	Revenue string `json:"revenue"`
}

// Table is the rendered order list
type Table struct {
	Rows     []Row          `json:"rows"`
	Summary  Summary        `json:"summary"`
	Statuses []StatusOption `json:"statuses"`
}

// StatusOption is one entry of the status selector
type StatusOption struct {
	Value models.Status `json:"value"`
	Label string        `json:"label"`
}

// Render builds the table for a list of orders. An empty list renders a
// single placeholder row.
func Render(orders []models.OrderView, summary models.SummaryStats) Table {
	t := Table{
		Summary:  RenderSummary(summary),
		Statuses: statusOptions(),
	}
	if len(orders) == 0 {
		t.Rows = []Row{{Placeholder: true, Message: NoOrdersMessage}}
		return t
	}

	t.Rows = make([]Row, len(orders))
	for i := range orders {
		t.Rows[i] = RenderRow(&orders[i])
	}
	return t
}

// RenderRow renders one order
func RenderRow(o *models.OrderView) Row {
	return Row{
		ID:          o.ID,
		ShortID:     ShortID(o.ID),
		UserID:      o.UserID,
		Customer:    o.UserName,
		Product:     o.ProductName,
		Image:       o.ProductImage,
		Quantity:    o.Quantity,
		Amount:      FormatINR(o.TotalAmount),
		Address:     o.UserAddress,
		Phone:       o.PhoneNo,
		Date:        o.BookingDate,
		OrderType:   o.OrderType(),
		Subscribed:  o.Subscribed,
		Status:      o.Status,
		StatusLabel: o.Status.Label(),
		Cancellable: o.Status == models.StatusPending,
	}
}

// RenderSummary formats summary stats
func RenderSummary(s models.SummaryStats) Summary {
	return Summary{Count: s.Count, Revenue: FormatINR(s.TotalRevenue)}
}

// ShortID returns the last eight characters of an order id
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func statusOptions() []StatusOption {
	opts := make([]StatusOption, len(models.Statuses))
	for i, s := range models.Statuses {
		opts[i] = StatusOption{Value: s, Label: s.Label()}
	}
	return opts
}

// FormatINR renders a rupee amount rounded to whole rupees with Indian
// digit grouping, e.g. ₹12,34,567.
func FormatINR(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	neg := amount < 0
	digits := strconv.FormatInt(int64(math.Abs(math.Round(amount))), 10)

	var b strings.Builder
	if neg && digits != "0" {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	b.WriteString(groupIndian(digits))
	return b.String()
}

// groupIndian inserts separators after the last three digits and then every
// two digits
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(groups, ",") + "," + tail
}
