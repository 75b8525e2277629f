package listing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bgmrules/internal/services"
)

func TestFetchTables(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	client, err := New(server.URL, WithUserAgent("test-agent"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	tables, err := client.FetchTables(context.Background())
	if err != nil {
		t.Fatalf("FetchTables returned error: %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(tables))
	}
	if gotUA != "test-agent" {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
}

func TestFetchTablesStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.FetchTables(context.Background()); !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New("  "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
