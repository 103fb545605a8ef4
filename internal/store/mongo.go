package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const recordingsCollection = "recordings"

// MongoStore implements RecordStore on a MongoDB collection keyed by
// recording id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(recordingsCollection),
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

func (s *MongoStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	var rec models.Recording
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &rec, nil
}

// ApplyUpdate sets the update's fields only while the stored status is one
// that may precede u.Status.
func (s *MongoStore) ApplyUpdate(ctx context.Context, id string, u models.Update) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": models.Predecessors(u.Status)},
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": u.Fields(time.Now().UTC())})
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	var current struct {
		Status models.JobStatus `bson:"status"`
	}
	err = s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get recording status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, u.Status)
}

var _ RecordStore = (*MongoStore)(nil)
