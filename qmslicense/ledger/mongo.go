package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "qms_license_issuances"

// MongoOption configures a MongoLedger.
type MongoOption func(*MongoLedger)

// WithCollectionName sets the MongoDB collection name. Default: "qms_license_issuances".
func WithCollectionName(name string) MongoOption {
	return func(l *MongoLedger) {
		l.collectionName = name
	}
}

// MongoLedger implements Ledger using MongoDB.
type MongoLedger struct {
	collection     *mongo.Collection
	collectionName string
}

// NewMongoLedger creates a MongoDB-backed ledger.
// It creates the necessary indexes on initialization.
func NewMongoLedger(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoLedger, error) {
	l := &MongoLedger{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(l)
	}
	if !validIdentifier.MatchString(l.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", l.collectionName)
	}
	l.collection = db.Collection(l.collectionName)

	if err := l.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return l, nil
}

func (l *MongoLedger) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "license_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "organization", Value: 1},
				{Key: "issued_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}
	_, err := l.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (l *MongoLedger) Record(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	if rec.Modules == nil {
		rec.Modules = []string{}
	}
	if _, err := l.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("record license: %w", err)
	}
	return nil
}

func (l *MongoLedger) Get(ctx context.Context, licenseID string) (*Record, error) {
	var rec Record
	err := l.collection.FindOne(ctx, bson.M{"license_id": licenseID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &rec, nil
}

func (f Filter) mongoQuery() bson.M {
	q := bson.M{}
	if f.Organization != "" {
		q["organization"] = f.Organization
	}
	if f.Tier != "" {
		q["tier"] = f.Tier
	}
	if !f.ExpiresBefore.IsZero() {
		q["expires_at"] = bson.M{"$lt": f.ExpiresBefore}
	}
	return q
}

func (l *MongoLedger) List(ctx context.Context, f Filter) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "issued_at", Value: 1},
		{Key: "license_id", Value: 1},
	})
	cursor, err := l.collection.Find(ctx, f.mongoQuery(), opts)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode licenses: %w", err)
	}
	return records, nil
}

func (l *MongoLedger) Count(ctx context.Context, f Filter) (int, error) {
	count, err := l.collection.CountDocuments(ctx, f.mongoQuery())
	if err != nil {
		return 0, fmt.Errorf("count licenses: %w", err)
	}
	return int(count), nil
}

func (l *MongoLedger) Close(_ context.Context) error {
	return nil // caller owns the mongo.Database
}
