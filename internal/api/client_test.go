// internal/api/client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doggo-app/locshare/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5080", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5080" {
		t.Errorf("expected baseURL=http://localhost:5080, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5080/", "secret")
	if c.baseURL != "http://localhost:5080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "")
	err := c.Healthcheck()
	if err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	err := c.Healthcheck()
	if err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	err := c.Healthcheck()
	if err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestLocations_Success(t *testing.T) {
	var receivedSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/locations" {
			t.Errorf("expected path /api/v1/locations, got %s", r.URL.Path)
		}
		receivedSecret = r.URL.Query().Get("secret")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"A","geometry":{"type":"Point","coordinates":[-117.2,47.1]},"properties":{"key":"dogLocationA"}},
			{"type":"Feature","id":"B","geometry":{"type":"Point","coordinates":[2.35,48.85]},"properties":{"key":"dogLocationB"}}
		]}`))
	}))
	defer server.Close()

	c := New(server.URL, "mysecret")
	got, err := c.Locations(context.Background())
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}

	if receivedSecret != "mysecret" {
		t.Errorf("expected secret=mysecret, got %s", receivedSecret)
	}
	want := []core.LocationRecord{
		core.NewLocationRecord("A", 47.1, -117.2),
		core.NewLocationRecord("B", 48.85, 2.35),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d locations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("location %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestLocations_NotPoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{}}
		]}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "").Locations(context.Background())
	if err == nil {
		t.Error("expected error for non-point feature")
	}
}

func TestLocations_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(server.URL, "wrong-secret").Locations(context.Background())
	if err == nil {
		t.Error("expected error for 401 response")
	}
}

func TestHistory_Success(t *testing.T) {
	var receivedKey, receivedLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/history" {
			t.Errorf("expected path /api/v1/history, got %s", r.URL.Path)
		}
		receivedKey = r.URL.Query().Get("key")
		receivedLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"type":"Feature","id":"dogLocationA",
			"geometry":{"type":"LineString","coordinates":[[-117.2,47.1],[-117.3,47.2]]},
			"properties":{"fixes":2}}`))
	}))
	defer server.Close()

	got, err := New(server.URL, "").History(context.Background(), "dogLocationA", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if receivedKey != "dogLocationA" {
		t.Errorf("expected key=dogLocationA, got %s", receivedKey)
	}
	if receivedLimit != "10" {
		t.Errorf("expected limit=10, got %s", receivedLimit)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fixes, got %d", len(got))
	}
	if got[1].Latitude != 47.2 || got[1].Longitude != -117.3 {
		t.Errorf("unexpected second fix %+v", got[1])
	}
}

func TestHistory_NotKept(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "history not kept by this store", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "").History(context.Background(), "dogLocationA", 0)
	if err == nil {
		t.Error("expected error for 404 response")
	}
}
