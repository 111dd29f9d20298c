package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"pdf-rag-service/models"
)

const (
	pineconeControlPlane = "https://api.pinecone.io"
	pineconeAPIVersion   = "2024-07"
	pineconeNamespace    = "documents"
	pineconeBatchSize    = 100
)

// PineconeStore talks to the Pinecone managed service over its REST API.
// Each logical collection maps to a serverless index created on first upsert.
// Chunk text rides in vector metadata under "content".
//
// Pinecone's search is approximate: repeated identical queries can rank
// equal-scored items differently, unlike the local and mongodb backends.
type PineconeStore struct {
	apiKey    string
	cloud     string
	region    string
	dimension int
	timeout   time.Duration

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker

	mu    sync.Mutex
	hosts map[string]string // index name -> data plane host
}

func NewPineconeStore(apiKey, cloud, region string, dimension int, timeout time.Duration) *PineconeStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PineconeAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &PineconeStore{
		apiKey:     apiKey,
		cloud:      cloud,
		region:     region,
		dimension:  dimension,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		hosts:      make(map[string]string),
	}
}

func (s *PineconeStore) Name() string { return "pinecone" }

// validateIndexName enforces Pinecone naming: lowercase alphanumerics and
// hyphens only. Rejects rather than silently rewriting the caller's name.
func validateIndexName(name string) (string, error) {
	lowered := strings.ToLower(name)
	if lowered == "" {
		return "", fmt.Errorf("%w: collection name must not be empty", models.ErrInvalidInput)
	}
	for _, r := range lowered {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", fmt.Errorf("%w: collection %q invalid for pinecone, use lowercase letters, digits and hyphens",
				models.ErrInvalidInput, name)
		}
	}
	return lowered, nil
}

type pineconeIndex struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"matches"`
}

func (s *PineconeStore) Upsert(ctx context.Context, collection string, items []Item) error {
	name, err := validateIndexName(collection)
	if err != nil {
		return err
	}

	host, err := s.ensureIndex(ctx, name)
	if err != nil {
		return err
	}

	for start := 0; start < len(items); start += pineconeBatchSize {
		end := min(start+pineconeBatchSize, len(items))

		vectors := make([]pineconeVector, 0, end-start)
		for _, item := range items[start:end] {
			metadata := map[string]any{"content": item.Text}
			for k, v := range item.Metadata {
				metadata[k] = v
			}
			vectors = append(vectors, pineconeVector{
				ID:       item.ID,
				Values:   item.Vector,
				Metadata: metadata,
			})
		}

		body := map[string]any{"vectors": vectors, "namespace": pineconeNamespace}
		if err := s.doJSON(ctx, http.MethodPost, "https://"+host+"/vectors/upsert", body, nil); err != nil {
			if start > 0 {
				// Earlier batches are already durable; report what landed.
				perr := &models.PartialUpsertError{Collection: collection}
				for _, item := range items[:start] {
					perr.Succeeded = append(perr.Succeeded, item.ID)
				}
				for _, item := range items[start:] {
					perr.Failed = append(perr.Failed, item.ID)
				}
				return perr
			}
			return err
		}
	}
	return nil
}

func (s *PineconeStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1", models.ErrInvalidInput)
	}

	name, err := validateIndexName(collection)
	if err != nil {
		return nil, err
	}

	host, exists, err := s.indexHost(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []SearchResult{}, nil
	}

	body := map[string]any{
		"namespace":       pineconeNamespace,
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		clauses := make(map[string]any, len(filter))
		for k, v := range filter {
			clauses[k] = map[string]any{"$eq": normalizeScalar(v)}
		}
		body["filter"] = clauses
	}

	var resp pineconeQueryResponse
	if err := s.doJSON(ctx, http.MethodPost, "https://"+host+"/query", body, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		content := ""
		metadata := map[string]any{}
		for k, v := range match.Metadata {
			if k == "content" {
				content, _ = v.(string)
				continue
			}
			metadata[k] = v
		}
		results = append(results, SearchResult{
			ID:       match.ID,
			Content:  content,
			Score:    match.Score,
			Metadata: metadata,
		})
	}
	return results, nil
}

func (s *PineconeStore) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	name, err := validateIndexName(collection)
	if err != nil {
		return false, err
	}

	_, exists, err := s.indexHost(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := s.doJSON(ctx, http.MethodDelete, pineconeControlPlane+"/indexes/"+name, nil, nil); err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.hosts, name)
	s.mu.Unlock()
	return true, nil
}

func (s *PineconeStore) Health(ctx context.Context) Health {
	if err := s.doJSON(ctx, http.MethodGet, pineconeControlPlane+"/indexes", nil, nil); err != nil {
		return Health{Healthy: false, Detail: fmt.Sprintf("pinecone unreachable: %v", err)}
	}
	return Health{Healthy: true, Detail: "pinecone reachable"}
}

// ensureIndex creates the serverless index if needed and returns its data
// plane host, waiting briefly for a fresh index to come ready.
func (s *PineconeStore) ensureIndex(ctx context.Context, name string) (string, error) {
	host, exists, err := s.indexHost(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return host, nil
	}

	body := map[string]any{
		"name":      name,
		"dimension": s.dimension,
		"metric":    "cosine",
		"spec": map[string]any{
			"serverless": map[string]any{"cloud": s.cloud, "region": s.region},
		},
	}
	if err := s.doJSON(ctx, http.MethodPost, pineconeControlPlane+"/indexes", body, nil); err != nil {
		return "", err
	}

	for attempt := 0; attempt < 30; attempt++ {
		var idx pineconeIndex
		if err := s.doJSON(ctx, http.MethodGet, pineconeControlPlane+"/indexes/"+name, nil, &idx); err == nil && idx.Status.Ready {
			s.mu.Lock()
			s.hosts[name] = idx.Host
			s.mu.Unlock()
			return idx.Host, nil
		}
		select {
		case <-ctx.Done():
			return "", translateCtxErr(ctx.Err(), s.Name())
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("%w: index %q never became ready", models.ErrBackendUnavailable, name)
}

var errPineconeNotFound = errors.New("pinecone index not found")

// indexHost resolves the cached data plane host, hitting the control plane on
// a cache miss. exists is false when the index does not exist.
func (s *PineconeStore) indexHost(ctx context.Context, name string) (host string, exists bool, err error) {
	s.mu.Lock()
	if cached, ok := s.hosts[name]; ok {
		s.mu.Unlock()
		return cached, true, nil
	}
	s.mu.Unlock()

	var idx pineconeIndex
	err = s.doJSON(ctx, http.MethodGet, pineconeControlPlane+"/indexes/"+name, nil, &idx)
	if errors.Is(err, errPineconeNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	s.hosts[name] = idx.Host
	s.mu.Unlock()
	return idx.Host, true, nil
}

// doJSON performs one breaker-guarded HTTP exchange with the Pinecone API.
func (s *PineconeStore) doJSON(ctx context.Context, method, url string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Api-Key", s.apiKey)
		req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Not a backend fault; must not trip the breaker
			return errPineconeNotFound, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: pinecone rejected credentials (status %d)", models.ErrBackendUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			respBody, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("pinecone request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode pinecone response: %w", err)
			}
		}
		return nil, nil
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: pinecone circuit breaker open", models.ErrBackendUnavailable)
	}
	if err != nil {
		return translateCtxErr(err, s.Name())
	}
	if sentinel, ok := result.(error); ok {
		return sentinel
	}
	return nil
}
