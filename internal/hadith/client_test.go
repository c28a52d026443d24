package hadith

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Fetch_Success(t *testing.T) {
	var gotPath, gotQuery, gotAccept, gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		gotClient = r.Header.Get("X-Client")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"text":"one"},{"text":"two"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/search", "bot-tests/1.0", 5*time.Second, 100, 10)
	out, err := c.Fetch(context.Background(), "prayer", map[string]string{"source": "bukhari", "limit": "5"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(out) != 2 || stringAt(out[0], "text") != "one" {
		t.Fatalf("unexpected response: %#v", out)
	}

	if gotPath != "/api/search" {
		t.Errorf("path = %q", gotPath)
	}
	// Params are sorted, so equivalent requests produce identical URLs.
	if gotQuery != "limit=5&q=prayer&source=bukhari" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAccept != "application/json" || gotClient != "bot-tests/1.0" {
		t.Errorf("headers = %q / %q", gotAccept, gotClient)
	}
}

func TestClient_Fetch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 5*time.Second, 100, 10)
	_, err := c.Fetch(context.Background(), "x", nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Fatalf("Code = %d; want 429", se.Code)
	}
}

func TestClient_Fetch_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 5*time.Second, 100, 10)
	if _, err := c.Fetch(context.Background(), "x", nil); err == nil {
		t.Fatal("expected decode error for non-array body")
	}
}

func TestClient_Fetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 5*time.Second, 100, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, "x", nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewClient_BurstFloor(t *testing.T) {
	c := NewClient("http://x", "t", time.Second, 1, 0)
	if c.limiter.Burst() != 1 {
		t.Fatalf("burst = %d; want floor of 1", c.limiter.Burst())
	}
}
