package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"pdf-rag-service/models"
)

func unit(x, y float32) []float32 {
	norm := float32(math.Sqrt(float64(x*x + y*y)))
	return []float32{x / norm, y / norm}
}

func seedStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore("")
	if err != nil {
		t.Fatal(err)
	}
	items := []Item{
		{ID: "doc_chunk_0", Vector: unit(1, 0), Text: "north", Metadata: map[string]any{"document_id": "doc", "lang": "en"}},
		{ID: "doc_chunk_1", Vector: unit(1, 1), Text: "northeast", Metadata: map[string]any{"document_id": "doc", "lang": "en"}},
		{ID: "doc_chunk_2", Vector: unit(0, 1), Text: "east", Metadata: map[string]any{"document_id": "doc", "lang": "de"}},
	}
	if err := s.Upsert(context.Background(), "test", items); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalSearchOrdering(t *testing.T) {
	s := seedStore(t)
	results, err := s.Search(context.Background(), "test", unit(1, 0), 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by descending score: %v then %v", results[i-1].Score, results[i].Score)
		}
	}
	if results[0].ID != "doc_chunk_0" {
		t.Errorf("best match: got %s, want doc_chunk_0", results[0].ID)
	}
	if results[0].Content != "north" {
		t.Errorf("content not returned: got %q", results[0].Content)
	}
}

func TestLocalSearchTieBreak(t *testing.T) {
	s, _ := NewLocalStore("")
	v := unit(1, 0)
	items := []Item{
		{ID: "b", Vector: v, Text: "b"},
		{ID: "a", Vector: v, Text: "a"},
		{ID: "c", Vector: v, Text: "c"},
	}
	if err := s.Upsert(context.Background(), "ties", items); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(context.Background(), "ties", v, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	order := []string{"a", "b", "c"}
	for i, want := range order {
		if results[i].ID != want {
			t.Fatalf("tie-break order at %d: got %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestLocalSearchTopKClamp(t *testing.T) {
	s := seedStore(t)
	results, err := s.Search(context.Background(), "test", unit(1, 0), 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("topK above stored count: got %d results, want 3", len(results))
	}
}

func TestLocalSearchInvalidTopK(t *testing.T) {
	s := seedStore(t)
	_, err := s.Search(context.Background(), "test", unit(1, 0), 0, nil)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLocalSearchFilter(t *testing.T) {
	s := seedStore(t)
	results, err := s.Search(context.Background(), "test", unit(1, 0), 10, map[string]any{"lang": "de"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "doc_chunk_2" {
		t.Fatalf("filter should match only doc_chunk_2, got %v", results)
	}

	none, err := s.Search(context.Background(), "test", unit(1, 0), 10, map[string]any{"lang": "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("non-matching filter should return empty, got %d", len(none))
	}
}

func TestLocalSearchAbsentCollection(t *testing.T) {
	s, _ := NewLocalStore("")
	results, err := s.Search(context.Background(), "never-created", unit(1, 0), 5, nil)
	if err != nil {
		t.Fatalf("absent collection must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("absent collection must return empty, got %d", len(results))
	}
}

func TestLocalUpsertIdempotent(t *testing.T) {
	s := seedStore(t)
	// Re-upsert the same ids with changed text; count must stay at 3.
	items := []Item{
		{ID: "doc_chunk_0", Vector: unit(1, 0), Text: "north v2", Metadata: map[string]any{"document_id": "doc"}},
	}
	if err := s.Upsert(context.Background(), "test", items); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(context.Background(), "test", unit(1, 0), 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("re-upsert must replace, not duplicate: got %d items", len(results))
	}
	if results[0].Content != "north v2" {
		t.Errorf("re-upsert did not replace content: got %q", results[0].Content)
	}
}

func TestLocalDeleteCollection(t *testing.T) {
	s := seedStore(t)
	deleted, err := s.DeleteCollection(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected deleted=true for existing collection")
	}

	results, err := s.Search(context.Background(), "test", unit(1, 0), 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("search after delete must be empty, got %d", len(results))
	}

	deleted, err = s.DeleteCollection(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("expected deleted=false for already removed collection")
	}
}

func TestLocalSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	items := []Item{
		{ID: "p_chunk_0", Vector: unit(3, 4), Text: "persisted", Metadata: map[string]any{"document_id": "p"}},
	}
	if err := s.Upsert(context.Background(), "persist", items); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	results, err := reopened.Search(context.Background(), "persist", unit(3, 4), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "persisted" {
		t.Fatalf("snapshot round trip failed: %v", results)
	}
}

func TestLocalHealth(t *testing.T) {
	s, _ := NewLocalStore("")
	h := s.Health(context.Background())
	if !h.Healthy {
		t.Fatalf("in-memory store must always be healthy: %+v", h)
	}
}
