package brn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobboard/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.BRNConfig{BaseURL: server.URL, ServiceKey: "test-key"})
	return client, server
}

func TestValidateBusiness_Valid(t *testing.T) {
	var received validateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("serviceKey") != "test-key" {
			t.Errorf("missing service key, got query %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"valid": "01"}},
		})
	})

	opening := time.Date(2015, 3, 2, 0, 0, 0, 0, time.UTC)
	valid, err := client.ValidateBusiness(context.Background(), "123-45-67890", opening, "이대표")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !valid {
		t.Fatalf("expected valid result")
	}

	if len(received.Businesses) != 1 {
		t.Fatalf("expected single business entry, got %d", len(received.Businesses))
	}
	entry := received.Businesses[0]
	if entry.RegNumber != "1234567890" {
		t.Fatalf("expected dashes stripped, got %q", entry.RegNumber)
	}
	if entry.OpeningDate != "20150302" {
		t.Fatalf("unexpected opening date %q", entry.OpeningDate)
	}
}

func TestValidateBusiness_Invalid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"valid": "02"}},
		})
	})

	valid, err := client.ValidateBusiness(context.Background(), "123-45-67890", time.Now(), "이대표")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if valid {
		t.Fatalf("expected invalid result")
	}
}

func TestValidateBusiness_EmptyData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	valid, err := client.ValidateBusiness(context.Background(), "123-45-67890", time.Now(), "이대표")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if valid {
		t.Fatalf("expected empty data to count as invalid")
	}
}

func TestValidateBusiness_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := client.ValidateBusiness(context.Background(), "123-45-67890", time.Now(), "이대표"); err == nil {
		t.Fatalf("expected error for upstream failure")
	}
}
