package repository

import (
	"context"
	"fmt"
	"time"

	"mongosession/converter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	ExpireAtIndexName  = "expire_at_ttl"
	PrincipalIndexName = "principal_index"
)

// SessionIndexes lets MongoDB remove sessions once expireAt passes and serves
// principal lookups. Documents whose expireAt is null are never removed.
func SessionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: converter.ExpireAtField, Value: 1}},
			Options: options.Index().
				SetName(ExpireAtIndexName).
				SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: converter.PrincipalField, Value: 1}},
			Options: options.Index().
				SetName(PrincipalIndexName).
				SetSparse(true),
		},
	}
}

func SetupIndexes(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	names, err := coll.Indexes().CreateMany(ctx, SessionIndexes())
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	if logger != nil {
		logger.Info("session indexes ready", zap.String("collection", coll.Name()), zap.Strings("indexes", names))
	}
	return nil
}
