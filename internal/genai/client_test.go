package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Hey! We have two in stock.  "}]}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "gemini-1.5-flash-latest", srv.URL)
	reply, err := c.Generate(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Hey! We have two in stock." {
		t.Errorf("reply not trimmed: %q", reply)
	}
	if gotPath != "/models/gemini-1.5-flash-latest:generateContent" {
		t.Errorf("wrong path: %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("wrong key: %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "prompt text" {
		t.Errorf("wrong request body: %+v", gotBody)
	}
}

func TestGenerate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", "m", srv.URL)
	_, err := c.Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", "m", srv.URL)
	if _, err := c.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error on empty candidates")
	}
}

func TestGenerate_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClientWithBaseURL("k", "m", srv.URL)
	if _, err := c.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected transport error")
	}
}
