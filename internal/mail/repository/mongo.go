package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gomailer/mail-service/internal/crud"
	"github.com/gomailer/mail-service/internal/mail"
)

// Indexes backing the list filters and the stats aggregation.
var Indexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	{Keys: bson.D{{Key: "to", Value: 1}}},
	{Keys: bson.D{{Key: "from", Value: 1}}, Options: options.Index().SetSparse(true)},
}

// NewMongoRepo returns the CRUD service for the mails collection, with
// timestamps maintained on every write.
func NewMongoRepo(col *mongo.Collection) *crud.BaseService[mail.Mail] {
	return crud.New[mail.Mail](col, crud.WithTimestamps())
}

// EnsureIndexes creates the mail indexes. It is idempotent.
func EnsureIndexes(ctx context.Context, col *mongo.Collection) error {
	if _, err := col.Indexes().CreateMany(ctx, Indexes); err != nil {
		return fmt.Errorf("create mail indexes: %w", err)
	}
	return nil
}
