package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("document not found")

// Backend is the document store holding bookings, profiles, products and admins
type Backend interface {
	ListBookings(ctx context.Context) ([]models.RawBooking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.RawBooking, error)
	GetBooking(ctx context.Context, id string) (*models.RawBooking, error)
	CreateBooking(ctx context.Context, booking *models.RawBooking) error
	UpdateBookingStatus(ctx context.Context, id string, status models.Status) error
	DeleteBooking(ctx context.Context, id string) error
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error
	GetProduct(ctx context.Context, id string) (*models.ProductRecord, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Postgres keeps the collections as tables
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to Postgres
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates missing tables and indexes
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Postgres) Close() error {
	return s.db.Close()
}

// GetUserProfile retrieves a profile by user id
func (s *Postgres) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.GetContext(ctx, &profile,
		"SELECT user_id, name, phone, address FROM user_info WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertUserProfile overwrites the profile of a user
func (s *Postgres) UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_info (user_id, name, phone, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, address = EXCLUDED.address`,
		profile.UserID, profile.Name, profile.Phone, profile.Address)
	return err
}

// GetProduct retrieves a catalog entry by id
func (s *Postgres) GetProduct(ctx context.Context, id string) (*models.ProductRecord, error) {
	var product models.ProductRecord
	err := s.db.GetContext(ctx, &product,
		"SELECT id, product_name, price, product_img FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// IsAdmin reports whether the user has an admin entry
func (s *Postgres) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = $1)", userID)
	return exists, err
}
