package models

import (
	"errors"
	"testing"
)

func TestChunkID(t *testing.T) {
	got := ChunkID("abc-123", 7)
	if got != "abc-123_chunk_7" {
		t.Fatalf("got %q, want %q", got, "abc-123_chunk_7")
	}
}

func TestValidateMetadataScalars(t *testing.T) {
	out, err := ValidateMetadata(map[string]any{
		"title":  "report",
		"pages":  12,
		"score":  3.5,
		"public": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out["title"] != "report" || out["public"] != true {
		t.Errorf("scalars changed: %v", out)
	}
	if v, ok := out["pages"].(float64); !ok || v != 12 {
		t.Errorf("int must normalize to float64, got %T %v", out["pages"], out["pages"])
	}
	if v, ok := out["score"].(float64); !ok || v != 3.5 {
		t.Errorf("float must stay float64, got %T %v", out["score"], out["score"])
	}
}

func TestValidateMetadataRejectsCompound(t *testing.T) {
	cases := map[string]any{
		"nested map": map[string]any{"a": 1},
		"slice":      []string{"a", "b"},
		"nil value":  nil,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateMetadata(map[string]any{"k": value})
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestValidateMetadataNil(t *testing.T) {
	out, err := ValidateMetadata(nil)
	if err != nil {
		t.Fatalf("nil metadata must be accepted: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
}
