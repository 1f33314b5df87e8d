// Package mongostore provides the MongoDB-backed product store.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/product"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
)

// Config selects the deployment, database and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// document mirrors the relational column set; nil fields are stored as null.
type document struct {
	Title          *string `bson:"title"`
	Description    *string `bson:"description"`
	Price          *string `bson:"price"`
	SizeType       *string `bson:"size_type"`
	ProductSize    *string `bson:"product_size"`
	ProductDetails *string `bson:"product_details"`
	ImagesLinks    *string `bson:"images_links"`
}

// ProductStore appends product documents to one collection.
type ProductStore struct {
	client *mongo.Client
	coll   collection
}

var _ crawler.ProductStore = (*ProductStore)(nil)

// NewProductStore connects and pings the deployment.
func NewProductStore(ctx context.Context, cfg Config) (*ProductStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("storage.mongo.uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db, coll := cfg.Database, cfg.Collection
	if db == "" {
		db = "catalog"
	}
	if coll == "" {
		coll = "shoes"
	}
	return &ProductStore{
		client: client,
		coll:   client.Database(db).Collection(coll),
	}, nil
}

func newWithCollection(coll collection) *ProductStore {
	return &ProductStore{coll: coll}
}

// Insert appends row and returns the generated ObjectID in hex.
func (s *ProductStore) Insert(ctx context.Context, row product.Row) (string, error) {
	if s == nil || s.coll == nil {
		return "", storage.ErrNotConfigured
	}
	res, err := s.coll.InsertOne(ctx, document{
		Title:          row.Title,
		Description:    row.Description,
		Price:          row.Price,
		SizeType:       row.SizeType,
		ProductSize:    row.ProductSize,
		ProductDetails: row.ProductDetails,
		ImagesLinks:    row.ImagesLinks,
	})
	if err != nil {
		return "", fmt.Errorf("insert product: %w", err)
	}
	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprint(id), nil
	}
}

// Exists reports whether a document with exactly this title is stored.
func (s *ProductStore) Exists(ctx context.Context, title string) (bool, error) {
	if s == nil || s.coll == nil {
		return false, storage.ErrNotConfigured
	}
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "title", Value: title}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return n > 0, nil
}

// Close disconnects the client.
func (s *ProductStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}
