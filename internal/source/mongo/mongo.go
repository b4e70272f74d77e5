// Package mongo reads an ordered record stream from a MongoDB collection.
// It can serve either side of a comparison.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/syntrixbase/indexsync/pkg/model"
)

// Name identifies the source in logs, metrics and errors.
const Name = "Mongo"

// Timestamp encodings.
const (
	TimestampDate   = "date"   // BSON date
	TimestampMillis = "millis" // int64 unix milliseconds
)

// Config configures the collection scan.
type Config struct {
	URI        string `yaml:"uri" toml:"uri"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`
	// IDField must hold string identifiers.
	IDField        string `yaml:"id_field" toml:"id_field"`
	TimestampField string `yaml:"timestamp_field" toml:"timestamp_field"`
	TimestampType  string `yaml:"timestamp_type" toml:"timestamp_type"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.IDField == "" {
		c.IDField = "_id"
	}
	if c.TimestampField == "" {
		c.TimestampField = "updated_at"
	}
	if c.TimestampType == "" {
		c.TimestampType = TimestampMillis
	}
}

// Validate returns an error if the configuration is invalid.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if c.Database == "" || c.Collection == "" {
		return fmt.Errorf("mongo database and collection are required")
	}
	if c.TimestampType != TimestampDate && c.TimestampType != TimestampMillis {
		return fmt.Errorf("mongo timestamp_type must be %q or %q, got %q", TimestampDate, TimestampMillis, c.TimestampType)
	}
	return nil
}

// Fetcher implements source.PageFetcher over a collection.
type Fetcher struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    Config
}

// Open connects to MongoDB and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Fetcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	f := New(client.Database(cfg.Database).Collection(cfg.Collection), cfg)
	f.client = client
	return f, nil
}

// New creates a Fetcher over an existing collection handle. Close does not
// disconnect a client it did not open.
func New(coll *mongo.Collection, cfg Config) *Fetcher {
	cfg.ApplyDefaults()
	return &Fetcher{coll: coll, cfg: cfg}
}

// Name implements source.PageFetcher.
func (f *Fetcher) Name() string {
	return Name
}

// FetchPage implements source.PageFetcher.
func (f *Fetcher) FetchPage(ctx context.Context, after *model.Cursor, limit int) ([]model.Record, error) {
	findOptions := options.Find().
		SetSort(f.sort()).
		SetProjection(bson.M{f.cfg.IDField: 1, f.cfg.TimestampField: 1}).
		SetLimit(int64(limit))

	cursor, err := f.coll.Find(ctx, f.filter(after), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := f.decode(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// EnsureIndexes creates the compound index the scan sorts on.
func (f *Fetcher) EnsureIndexes(ctx context.Context) error {
	_, err := f.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: f.sort(),
	})
	return err
}

// Close disconnects the client if the Fetcher opened it.
func (f *Fetcher) Close() error {
	if f.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.client.Disconnect(ctx)
}

func (f *Fetcher) sort() bson.D {
	return bson.D{
		{Key: f.cfg.TimestampField, Value: 1},
		{Key: f.cfg.IDField, Value: 1},
	}
}

func (f *Fetcher) filter(after *model.Cursor) bson.M {
	if after == nil {
		return bson.M{}
	}
	ts := f.encodeTime(after.Timestamp)
	if !after.HasID() {
		return bson.M{f.cfg.TimestampField: bson.M{"$gte": ts}}
	}
	return bson.M{"$or": bson.A{
		bson.M{f.cfg.TimestampField: bson.M{"$gt": ts}},
		bson.M{f.cfg.TimestampField: ts, f.cfg.IDField: bson.M{"$gt": after.ID}},
	}}
}

func (f *Fetcher) encodeTime(t time.Time) any {
	if f.cfg.TimestampType == TimestampDate {
		return primitive.NewDateTimeFromTime(t)
	}
	return t.UnixMilli()
}

func (f *Fetcher) decode(doc bson.M) (model.Record, error) {
	id, ok := doc[f.cfg.IDField].(string)
	if !ok {
		return model.Record{}, fmt.Errorf("document %v: field %s is not a string", doc[f.cfg.IDField], f.cfg.IDField)
	}

	var ts time.Time
	switch v := doc[f.cfg.TimestampField].(type) {
	case primitive.DateTime:
		ts = v.Time()
	case int64:
		ts = time.UnixMilli(v)
	case int32:
		ts = time.UnixMilli(int64(v))
	case float64:
		ts = time.UnixMilli(int64(v))
	default:
		return model.Record{}, fmt.Errorf("document %s: field %s has unsupported type %T", id, f.cfg.TimestampField, v)
	}
	return model.Record{ID: id, Timestamp: ts.UTC()}, nil
}
