package commands

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bubbles/internal/constants"
)

// GuildConfig is one guild's settings document.
type GuildConfig struct {
	GuildID   string                 `bson:"guild_id" json:"guildId"`
	Settings  map[string]interface{} `bson:"settings" json:"settings"`
	UpdatedBy string                 `bson:"updated_by,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time              `bson:"updated_at" json:"updatedAt"`
}

type GuildConfigStore interface {
	Upsert(ctx context.Context, guildID, updatedBy string, settings map[string]interface{}) (*GuildConfig, error)
	Get(ctx context.Context, guildID string) (*GuildConfig, error)
}

type mongoGuildConfigStore struct {
	collection *mongo.Collection
}

func NewGuildConfigStore(db *mongo.Database) GuildConfigStore {
	return &mongoGuildConfigStore{collection: db.Collection(constants.GuildConfigCollection)}
}

// Upsert merges settings into the stored document key by key.
func (s *mongoGuildConfigStore) Upsert(ctx context.Context, guildID, updatedBy string, settings map[string]interface{}) (*GuildConfig, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if updatedBy != "" {
		set["updated_by"] = updatedBy
	}
	for k, v := range settings {
		set["settings."+k] = v
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var cfg GuildConfig
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"guild_id": guildID}, bson.M{"$set": set}, opts).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert guild config %s: %w", guildID, err)
	}
	return &cfg, nil
}

func (s *mongoGuildConfigStore) Get(ctx context.Context, guildID string) (*GuildConfig, error) {
	var cfg GuildConfig
	err := s.collection.FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild config %s: %w", guildID, err)
	}
	return &cfg, nil
}

type ConfigHandler struct {
	store GuildConfigStore
}

func NewConfigHandler(store GuildConfigStore) *ConfigHandler {
	return &ConfigHandler{store: store}
}

func (h *ConfigHandler) Handle(ctx context.Context, job *ConfigJob) (interface{}, error) {
	return h.store.Upsert(ctx, job.GuildID, job.UserID, job.Settings)
}
