package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ollamaStub(t *testing.T, handler http.HandlerFunc) *OllamaEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e, err := NewOllamaEngine(srv.URL+"/", "test-model")
	if err != nil {
		t.Fatalf("NewOllamaEngine() error = %v", err)
	}
	return e
}

func TestOllamaEmbed(t *testing.T) {
	e := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s, want /api/embeddings", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req["model"] != "test-model" || req["prompt"] != "hello" {
			t.Errorf("request = %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	})

	got, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 2 || got[0] != 0.1 {
		t.Fatalf("Embed() = %v", got)
	}
}

func TestOllamaEmbedErrorTruncated(t *testing.T) {
	e := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 4096)))
	})

	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("Embed() succeeded against a failing server")
	}
	if len(err.Error()) > 700 {
		t.Fatalf("error message not truncated: %d bytes", len(err.Error()))
	}
}

func TestOllamaEmptyEmbeddingIsError(t *testing.T) {
	e := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	})
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("Embed() accepted an empty embedding")
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	e := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s, want /api/tags", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}
