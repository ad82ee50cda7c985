package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names shared with the web client
const (
	CollectionBookings = "booking-info"
	CollectionUsers    = "user-info"
	CollectionProducts = "products"
	CollectionAdmins   = "admin"
)

// Mongo keeps the collections as documents
type Mongo struct {
	client   *mongo.Client
	bookings *mongo.Collection
	users    *mongo.Collection
	products *mongo.Collection
	admins   *mongo.Collection
	logger   *zap.Logger
}

// NewMongo connects to MongoDB and ensures the booking indexes exist
func NewMongo(uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	m := &Mongo{
		client:   client,
		bookings: db.Collection(CollectionBookings),
		users:    db.Collection(CollectionUsers),
		products: db.Collection(CollectionProducts),
		admins:   db.Collection(CollectionAdmins),
		logger:   util.GetLogger(),
	}

	_, err = m.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return m, nil
}

// Ping checks the connection
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects the client
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// idFilter matches ids stored as plain strings or as ObjectIDs
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

// ListBookings retrieves every booking, newest first
func (m *Mongo) ListBookings(ctx context.Context) ([]models.RawBooking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	return m.findBookings(ctx, bson.M{}, opts)
}

// ListBookingsByUser retrieves the bookings of one user in storage order
func (m *Mongo) ListBookingsByUser(ctx context.Context, userID string) ([]models.RawBooking, error) {
	return m.findBookings(ctx, bson.M{"userId": userID})
}

func (m *Mongo) findBookings(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.RawBooking, error) {
	cursor, err := m.bookings.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.RawBooking
	for cursor.Next(ctx) {
		id := docID(cursor.Current.Lookup("_id"))

		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Warn("Malformed booking document",
				zap.String("booking_id", id),
				zap.Error(err))
			out = append(out, models.RawBooking{ID: id, DecodeErr: err})
			continue
		}
		out = append(out, toBookingModel(id, &doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	return out, nil
}

// GetBooking retrieves a booking by id
func (m *Mongo) GetBooking(ctx context.Context, id string) (*models.RawBooking, error) {
	raw, err := m.bookings.FindOne(ctx, idFilter(id)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	var doc bookingDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode booking %s: %w", id, err)
	}
	b := toBookingModel(docID(raw.Lookup("_id")), &doc)
	return &b, nil
}

// CreateBooking inserts a new booking
func (m *Mongo) CreateBooking(ctx context.Context, b *models.RawBooking) error {
	if _, err := m.bookings.InsertOne(ctx, toBookingInsert(b)); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// UpdateBookingStatus sets the status of one booking
func (m *Mongo) UpdateBookingStatus(ctx context.Context, id string, status models.Status) error {
	result, err := m.bookings.UpdateOne(ctx, idFilter(id),
		bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteBooking removes a booking
func (m *Mongo) DeleteBooking(ctx context.Context, id string) error {
	result, err := m.bookings.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetUserProfile retrieves a profile by user id
func (m *Mongo) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var doc userDocument
	err := m.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &models.UserProfile{
		UserID:  userID,
		Name:    doc.Name,
		Phone:   string(doc.Phone),
		Address: doc.Address,
	}, nil
}

// UpsertUserProfile overwrites the profile of a user
func (m *Mongo) UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error {
	doc := userDocument{
		Name:    profile.Name,
		Phone:   flexString(profile.Phone),
		Address: profile.Address,
	}
	_, err := m.users.ReplaceOne(ctx, bson.M{"_id": profile.UserID}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetProduct retrieves a catalog entry by id
func (m *Mongo) GetProduct(ctx context.Context, id string) (*models.ProductRecord, error) {
	var doc productDocument
	err := m.products.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return &models.ProductRecord{
		ID:    id,
		Name:  doc.Name,
		Price: doc.Price.Value,
		Image: doc.Image,
	}, nil
}

// IsAdmin reports whether the user has a document in the admin collection
func (m *Mongo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	n, err := m.admins.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return n > 0, nil
}
