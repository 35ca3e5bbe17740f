package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bubbles/internal/constants"
)

// EnsureMongoCollection creates the guild configuration indexes. The
// collection itself is created on first upsert.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.GuildConfigCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "guild_id", Value: 1}},
			Options: options.Index().SetName("idx_guild_configs_guild_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_guild_configs_updated_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
