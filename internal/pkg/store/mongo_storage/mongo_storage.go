package mongo_storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"media_relay_bot/internal/pkg/store/domain"
)

type MongoStorage struct {
	client *mongo.Client
	users  *mongo.Collection
}

func NewMongoStorage(client *mongo.Client, database, collection string) *MongoStorage {
	return &MongoStorage{
		client: client,
		users:  client.Database(database).Collection(collection),
	}
}

// Open подключается к Mongo и создает уникальный индекс по user_id.
func Open(ctx context.Context, uri, database, collection string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := NewMongoStorage(client, database, collection)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create user_id index: %w", err)
	}
	return s, nil
}

func (m *MongoStorage) Upsert(ctx context.Context, userID int64, fields domain.Document) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	_, err := m.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoStorage) Unset(ctx context.Context, userID int64, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	unset := bson.M{}
	for _, f := range fields {
		unset[f] = ""
	}
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$unset": unset})
	return err
}

func (m *MongoStorage) FindOne(ctx context.Context, userID int64) (domain.Document, error) {
	var raw bson.M
	err := m.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc := domain.Document{}
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = normalize(v)
	}
	return doc, nil
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStorage) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// normalize приводит BSON-типы к тем, что понимает domain.Document.
func normalize(v any) any {
	switch val := v.(type) {
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}
