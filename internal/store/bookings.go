package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

const bookingColumns = `id, user_id, product_id, product_name, quantity, total_amount,
	created_at, subscribed, status, user_name, user_phone, user_address`

type bookingRow struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	ProductID   string          `db:"product_id"`
	ProductName sql.NullString  `db:"product_name"`
	Quantity    int             `db:"quantity"`
	TotalAmount sql.NullFloat64 `db:"total_amount"`
	CreatedAt   sql.NullTime    `db:"created_at"`
	Subscribed  bool            `db:"subscribed"`
	Status      string          `db:"status"`
	UserName    sql.NullString  `db:"user_name"`
	UserPhone   sql.NullString  `db:"user_phone"`
	UserAddress sql.NullString  `db:"user_address"`
}

func (r *bookingRow) toModel() models.RawBooking {
	b := models.RawBooking{
		ID:          r.ID,
		UserID:      r.UserID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName.String,
		Quantity:    r.Quantity,
		Subscribed:  r.Subscribed,
		Status:      r.Status,
	}
	if r.TotalAmount.Valid {
		amount := r.TotalAmount.Float64
		b.TotalAmount = &amount
	}
	if r.CreatedAt.Valid {
		b.Timestamp = models.At(r.CreatedAt.Time)
	}
	if r.UserName.Valid || r.UserPhone.Valid || r.UserAddress.Valid {
		b.UserInfo = &models.UserInfo{
			Name:    r.UserName.String,
			Phone:   r.UserPhone.String,
			Address: r.UserAddress.String,
		}
	}
	return b
}

func toModels(rows []bookingRow) []models.RawBooking {
	out := make([]models.RawBooking, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}

// ListBookings retrieves every booking, newest first
func (s *Postgres) ListBookings(ctx context.Context) ([]models.RawBooking, error) {
	var rows []bookingRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+bookingColumns+" FROM bookings ORDER BY created_at DESC NULLS LAST")
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// ListBookingsByUser retrieves the bookings of one user in storage order
func (s *Postgres) ListBookingsByUser(ctx context.Context, userID string) ([]models.RawBooking, error) {
	var rows []bookingRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// GetBooking retrieves a booking by id
func (s *Postgres) GetBooking(ctx context.Context, id string) (*models.RawBooking, error) {
	var row bookingRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b := row.toModel()
	return &b, nil
}

// CreateBooking inserts a new booking
func (s *Postgres) CreateBooking(ctx context.Context, b *models.RawBooking) error {
	var createdAt sql.NullTime
	if b.Timestamp.Valid {
		createdAt = sql.NullTime{Time: b.Timestamp.Time, Valid: true}
	}
	var total sql.NullFloat64
	if b.TotalAmount != nil {
		total = sql.NullFloat64{Float64: *b.TotalAmount, Valid: true}
	}
	var name, phone, address sql.NullString
	if b.UserInfo != nil {
		name = sql.NullString{String: b.UserInfo.Name, Valid: true}
		phone = sql.NullString{String: b.UserInfo.Phone, Valid: true}
		address = sql.NullString{String: b.UserInfo.Address, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.UserID, b.ProductID, sql.NullString{String: b.ProductName, Valid: b.ProductName != ""},
		b.Quantity, total, createdAt, b.Subscribed, b.Status, name, phone, address)
	return err
}

// UpdateBookingStatus sets the status of one booking
func (s *Postgres) UpdateBookingStatus(ctx context.Context, id string, status models.Status) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

// DeleteBooking removes a booking
func (s *Postgres) DeleteBooking(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}
