package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"pdf-rag-service/internal/logger"
	"pdf-rag-service/models"
	"pdf-rag-service/utils"
)

const snapshotFile = "vectorstore.snapshot"

// LocalStore is the in-process backend: no external dependency, exact search,
// fully deterministic ordering. Optionally persists a gzip-compressed JSON
// snapshot so collections survive restarts.
//
// Upserts stage a copy of the target collection and swap it in, so a batch is
// atomic: readers see either none or all of its items.
type LocalStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Item
	persistDir  string
}

func NewLocalStore(persistDir string) (*LocalStore, error) {
	s := &LocalStore{
		collections: make(map[string]map[string]Item),
		persistDir:  persistDir,
	}
	if persistDir != "" {
		if err := os.MkdirAll(persistDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		if err := s.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Upsert(ctx context.Context, collection string, items []Item) error {
	if err := ctx.Err(); err != nil {
		return translateCtxErr(err, s.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]Item, len(s.collections[collection])+len(items))
	for id, item := range s.collections[collection] {
		staged[id] = item
	}
	for _, item := range items {
		staged[item.ID] = item
	}
	s.collections[collection] = staged

	return s.saveSnapshot()
}

func (s *LocalStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1", models.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, translateCtxErr(err, s.Name())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items, exists := s.collections[collection]
	if !exists {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		if len(filter) > 0 && !matchesFilter(item.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			ID:       item.ID,
			Content:  item.Text,
			Score:    dot(vector, item.Vector),
			Metadata: item.Metadata,
		})
	}

	// Descending similarity, ascending id on ties: identical inputs always
	// rank identically.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *LocalStore) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, translateCtxErr(err, s.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collection]; !exists {
		return false, nil
	}
	delete(s.collections, collection)

	return true, s.saveSnapshot()
}

func (s *LocalStore) Health(ctx context.Context) Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Health{
		Healthy: true,
		Detail:  fmt.Sprintf("local index, %d collections", len(s.collections)),
	}
}

// saveSnapshot writes the full state to disk. Caller holds s.mu.
func (s *LocalStore) saveSnapshot() error {
	if s.persistDir == "" {
		return nil
	}

	data, err := json.Marshal(s.collections)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	compressed, err := utils.CompressData(data)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	// Write-then-rename keeps a crash from truncating the previous snapshot.
	path := filepath.Join(s.persistDir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *LocalStore) loadSnapshot() error {
	path := filepath.Join(s.persistDir, snapshotFile)
	compressed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	data, err := utils.DecompressData(compressed)
	if err != nil {
		return fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s.collections); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	logger.Info("Loaded local index snapshot", "collections", len(s.collections))
	return nil
}
