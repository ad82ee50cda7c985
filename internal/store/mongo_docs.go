package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Documents written by the web client carry loosely typed fields: numbers stored
// as strings, ids as strings or ObjectIDs, timestamps as dates or exported
// {seconds, nanoseconds} maps. The flex types below decode all of them.

type flexNumber struct {
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	*n = flexNumber{}
	switch t {
	case bsontype.Double:
		n.Value, n.Valid = rv.Double(), true
	case bsontype.Int32:
		n.Value, n.Valid = float64(rv.Int32()), true
	case bsontype.Int64:
		n.Value, n.Valid = float64(rv.Int64()), true
	case bsontype.Decimal128:
		f, err := strconv.ParseFloat(rv.Decimal128().String(), 64)
		n.Value, n.Valid = f, err == nil
	case bsontype.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.StringValue()), 64)
		n.Value, n.Valid = f, err == nil
	}
	return nil
}

func (n flexNumber) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !n.Valid {
		return bsontype.Null, nil, nil
	}
	return bson.MarshalValue(n.Value)
}

type flexTime struct {
	models.Instant
}

func (ft *flexTime) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	ft.Instant = models.Instant{}
	switch t {
	case bsontype.DateTime:
		ft.Instant = models.At(time.UnixMilli(rv.DateTime()))
	case bsontype.Timestamp:
		secs, _ := rv.Timestamp()
		ft.Instant = models.At(time.Unix(int64(secs), 0))
	case bsontype.Int64:
		ft.Instant = models.At(time.UnixMilli(rv.Int64()))
	case bsontype.Int32:
		ft.Instant = models.At(time.UnixMilli(int64(rv.Int32())))
	case bsontype.Double:
		ft.Instant = models.At(time.UnixMilli(int64(rv.Double())))
	case bsontype.String:
		s := rv.StringValue()
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ft.Instant = models.At(parsed)
		} else {
			ft.Raw = s
		}
	case bsontype.EmbeddedDocument:
		doc := rv.Document()
		secs, ok := lookupInt(doc, "seconds", "_seconds")
		if !ok {
			ft.Raw = doc.String()
			return nil
		}
		nanos, _ := lookupInt(doc, "nanoseconds", "_nanoseconds")
		ft.Instant = models.At(time.Unix(secs, nanos))
	case bsontype.Null, bsontype.Undefined:
	default:
		ft.Raw = t.String()
	}
	return nil
}

func (ft flexTime) MarshalBSONValue() (bsontype.Type, []byte, error) {
	switch {
	case ft.Valid:
		return bson.MarshalValue(primitive.NewDateTimeFromTime(ft.Time))
	case ft.Raw != "":
		return bson.MarshalValue(ft.Raw)
	}
	return bsontype.Null, nil, nil
}

func lookupInt(doc bson.Raw, keys ...string) (int64, bool) {
	for _, key := range keys {
		v, err := doc.LookupErr(key)
		if err != nil {
			continue
		}
		var n flexNumber
		_ = n.UnmarshalBSONValue(v.Type, v.Value)
		if n.Valid {
			return int64(n.Value), true
		}
	}
	return 0, false
}

type flexString string

func (s *flexString) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*s = flexString(rv.StringValue())
	case bsontype.Int32, bsontype.Int64, bsontype.Double:
		var n flexNumber
		_ = n.UnmarshalBSONValue(t, data)
		*s = flexString(strconv.FormatFloat(n.Value, 'f', -1, 64))
	default:
		*s = ""
	}
	return nil
}

// docID renders a string or ObjectID _id as a string
func docID(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	}
	return fmt.Sprint(v)
}

type userInfoDocument struct {
	Name    string     `bson:"name"`
	Phone   flexString `bson:"phone"`
	Address string     `bson:"address"`
}

type bookingDocument struct {
	UserID      string            `bson:"userId"`
	ProductID   string            `bson:"productId"`
	ProductName string            `bson:"productName,omitempty"`
	Quantity    flexNumber        `bson:"quantity"`
	TotalAmount *flexNumber       `bson:"totalAmount,omitempty"`
	Timestamp   flexTime          `bson:"timestamp"`
	Subscribed  bool              `bson:"subscribed"`
	Status      string            `bson:"status"`
	UserInfo    *userInfoDocument `bson:"userInfo,omitempty"`
}

type bookingInsert struct {
	ID      string          `bson:"_id"`
	Booking bookingDocument `bson:",inline"`
}

type userDocument struct {
	Name    string     `bson:"name"`
	Phone   flexString `bson:"phone"`
	Address string     `bson:"address"`
}

type productDocument struct {
	Name  string     `bson:"product_name"`
	Price flexNumber `bson:"price"`
	Image string     `bson:"product_img"`
}

func toBookingModel(id string, doc *bookingDocument) models.RawBooking {
	b := models.RawBooking{
		ID:          id,
		UserID:      doc.UserID,
		ProductID:   doc.ProductID,
		ProductName: doc.ProductName,
		Quantity:    int(doc.Quantity.Value),
		Timestamp:   doc.Timestamp.Instant,
		Subscribed:  doc.Subscribed,
		Status:      doc.Status,
	}
	if doc.TotalAmount != nil && doc.TotalAmount.Valid {
		amount := doc.TotalAmount.Value
		b.TotalAmount = &amount
	}
	if doc.UserInfo != nil {
		b.UserInfo = &models.UserInfo{
			Name:    doc.UserInfo.Name,
			Phone:   string(doc.UserInfo.Phone),
			Address: doc.UserInfo.Address,
		}
	}
	return b
}

func toBookingInsert(b *models.RawBooking) *bookingInsert {
	doc := &bookingInsert{
		ID: b.ID,
		Booking: bookingDocument{
			UserID:      b.UserID,
			ProductID:   b.ProductID,
			ProductName: b.ProductName,
			Quantity:    flexNumber{Value: float64(b.Quantity), Valid: true},
			Timestamp:   flexTime{Instant: b.Timestamp},
			Subscribed:  b.Subscribed,
			Status:      b.Status,
		},
	}
	if b.TotalAmount != nil {
		doc.Booking.TotalAmount = &flexNumber{Value: *b.TotalAmount, Valid: true}
	}
	if b.UserInfo != nil {
		doc.Booking.UserInfo = &userInfoDocument{
			Name:    b.UserInfo.Name,
			Phone:   flexString(b.UserInfo.Phone),
			Address: b.UserInfo.Address,
		}
	}
	return doc
}
