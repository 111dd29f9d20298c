package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdf-rag-service/models"
)

// MongoStore persists items in MongoDB, one Mongo collection per logical
// collection. Similarity is computed inside an aggregation pipeline; because
// vectors are stored normalized, the dot product is the cosine score.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

type mongoItem struct {
	ID       string         `bson:"_id"`
	Text     string         `bson:"text"`
	Vector   []float32      `bson:"vector"`
	Metadata map[string]any `bson:"metadata,omitempty"`
}

type mongoMatch struct {
	ID         string         `bson:"_id"`
	Text       string         `bson:"text"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Similarity float64        `bson:"similarity"`
}

func NewMongoStore(client *mongo.Client, dbName string, timeout time.Duration) *MongoStore {
	return &MongoStore{
		client:  client,
		db:      client.Database(dbName),
		timeout: timeout,
	}
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Upsert(ctx context.Context, collection string, items []Item) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	writes := make([]mongo.WriteModel, len(items))
	for i, item := range items {
		doc := mongoItem{ID: item.ID, Text: item.Text, Vector: item.Vector, Metadata: item.Metadata}
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": item.ID}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	coll := s.db.Collection(collection)
	_, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) {
			return s.partialUpsertError(collection, items, bulkErr)
		}
		return translateCtxErr(err, s.Name())
	}

	// Index lookups by owning document; idempotent.
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "metadata." + models.MetaDocumentID, Value: 1}},
	})
	if err != nil {
		return translateCtxErr(err, s.Name())
	}
	return nil
}

// partialUpsertError reports exactly which ids the bulk write rejected so the
// caller can re-ingest only those.
func (s *MongoStore) partialUpsertError(collection string, items []Item, bulkErr mongo.BulkWriteException) error {
	failed := make(map[int]bool, len(bulkErr.WriteErrors))
	for _, we := range bulkErr.WriteErrors {
		failed[we.Index] = true
	}

	perr := &models.PartialUpsertError{Collection: collection}
	for i, item := range items {
		if failed[i] {
			perr.Failed = append(perr.Failed, item.ID)
		} else {
			perr.Succeeded = append(perr.Succeeded, item.ID)
		}
	}
	if len(perr.Failed) == 0 {
		// Write concern or other non-itemized failure
		return fmt.Errorf("%w: bulk write failed: %v", models.ErrBackendUnavailable, bulkErr)
	}
	return perr
}

func (s *MongoStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1", models.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return nil, translateCtxErr(err, s.Name())
	}
	if !exists {
		return []SearchResult{}, nil
	}

	// Query vector as float64 for the pipeline arithmetic
	queryVec := make(bson.A, len(vector))
	for i, v := range vector {
		queryVec[i] = float64(v)
	}

	pipeline := mongo.Pipeline{}
	if len(filter) > 0 {
		match := bson.D{}
		for key, value := range filter {
			match = append(match, bson.E{Key: "metadata." + key, Value: normalizeScalar(value)})
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	// similarity = sum(vector[i] * query[i]); stored vectors are normalized
	pipeline = append(pipeline,
		bson.D{{Key: "$addFields", Value: bson.D{{Key: "similarity", Value: bson.D{
			{Key: "$reduce", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$zip", Value: bson.D{
					{Key: "inputs", Value: bson.A{"$vector", queryVec}},
				}}}},
				{Key: "initialValue", Value: 0.0},
				{Key: "in", Value: bson.D{{Key: "$add", Value: bson.A{
					"$$value",
					bson.D{{Key: "$multiply", Value: bson.A{
						bson.D{{Key: "$arrayElemAt", Value: bson.A{"$$this", 0}}},
						bson.D{{Key: "$arrayElemAt", Value: bson.A{"$$this", 1}}},
					}}},
				}}}},
			}},
		}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "similarity", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: topK}},
	)

	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translateCtxErr(err, s.Name())
	}
	defer cursor.Close(ctx)

	var matches []mongoMatch
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, translateCtxErr(err, s.Name())
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			ID:       m.ID,
			Content:  m.Text,
			Score:    m.Similarity,
			Metadata: m.Metadata,
		}
	}
	return results, nil
}

func (s *MongoStore) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return false, translateCtxErr(err, s.Name())
	}
	if !exists {
		return false, nil
	}

	if err := s.db.Collection(collection).Drop(ctx); err != nil {
		return false, translateCtxErr(err, s.Name())
	}
	return true, nil
}

func (s *MongoStore) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return Health{Healthy: false, Detail: fmt.Sprintf("mongodb ping failed: %v", err)}
	}
	return Health{Healthy: true, Detail: "mongodb connected"}
}

func (s *MongoStore) collectionExists(ctx context.Context, collection string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}
