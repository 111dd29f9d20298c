package vectorstore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"pdf-rag-service/internal/config"
	"pdf-rag-service/models"
)

// New builds the configured backend once at startup. Backend selection is a
// configuration-time decision; nothing dispatches on backend type per call.
// mongoClient may be nil unless the mongodb backend is selected.
func New(cfg *config.Config, mongoClient *mongo.Client) (Store, error) {
	switch cfg.VectorStoreType {
	case config.StoreLocal:
		return NewLocalStore(cfg.LocalPersistDir)

	case config.StoreMongoDB:
		if mongoClient == nil {
			return nil, fmt.Errorf("mongodb backend selected but no client connected")
		}
		return NewMongoStore(mongoClient, cfg.DBName, cfg.BackendTimeout), nil

	case config.StorePinecone:
		return NewPineconeStore(cfg.PineconeAPIKey, cfg.PineconeCloud, cfg.PineconeRegion,
			cfg.EmbeddingDim, cfg.BackendTimeout), nil

	default:
		return nil, &models.ConfigError{
			Field:  "VECTOR_STORE_TYPE",
			Reason: fmt.Sprintf("unsupported backend %q", cfg.VectorStoreType),
		}
	}
}
