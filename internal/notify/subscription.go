package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleetdesk/pkg/config"
)

const (
	SubscriptionCollectionName = "Push_subscriptions"
)

var ErrSubscriptionNotFound = errors.New("push subscription not found")

// PushSubscription is a browser push endpoint registered by a user so the
// dispatcher can reach them when their booking changes state.
type PushSubscription struct {
	UserID    string            `json:"userId" bson:"user_id"`
	Endpoint  string            `json:"endpoint" bson:"_id"`
	Keys      map[string]string `json:"keys" bson:"keys"`
	CreatedAt time.Time         `json:"createdAt" bson:"created_at"`
}

type SubscriptionRepository interface {
	Save(ctx context.Context, sub *PushSubscription) error
	FindByUserID(ctx context.Context, userID string) ([]*PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

type mongoSubscriptionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSubscriptionRepository(cfg *config.Config) SubscriptionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSubscriptionRepository{
		cfg:        cfg,
		collection: db.Collection(SubscriptionCollectionName),
	}
}

// Save upserts on the endpoint so re-registering a browser is harmless.
func (r *mongoSubscriptionRepository) Save(ctx context.Context, sub *PushSubscription) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	sub.CreatedAt = time.Now().UTC()
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": sub.Endpoint},
		sub,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

func (r *mongoSubscriptionRepository) FindByUserID(ctx context.Context, userID string) ([]*PushSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to find push subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var subs []*PushSubscription
	if err = cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode push subscriptions: %w", err)
	}
	return subs, nil
}

func (r *mongoSubscriptionRepository) Delete(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": endpoint})
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
