package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "fleetdesk/internal/bookings/errors"
	"fleetdesk/pkg/config"
	"fleetdesk/pkg/model"
)

const (
	LockCollectionName = "Dispatch_locks"
)

// SlotLockRepository implements short-lived advisory locks backed by a
// unique _id insert. Acquiring is a single InsertOne; a duplicate-key
// error means another approval holds the slot. A TTL index on expires_at
// reaps locks left behind by crashed processes.
type SlotLockRepository interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

type mongoSlotLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotLockRepository(cfg *config.Config) SlotLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotLockRepository{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

// SlotKey derives the lock key for a vehicle/time pair. Truncation to the
// minute keeps retries of the same request hitting the same lock document.
func SlotKey(vehicleID string, scheduledAt time.Time) string {
	return fmt.Sprintf("%s:%d", vehicleID, scheduledAt.UTC().Truncate(time.Minute).Unix())
}

func (r *mongoSlotLockRepository) Acquire(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := model.SlotLock{
		ID:        key,
		ExpiresAt: now.Add(r.cfg.SlotLockTTL),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrSlotLocked
		}
		return fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	return nil
}

func (r *mongoSlotLockRepository) Release(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	return nil
}
