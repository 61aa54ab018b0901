package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/jobwatch/internal/model"
)

// TestHTTPSource_Pull はスクレイパーAPIのレスポンスが候補に変換される
// ことをテストする。
func TestHTTPSource_Pull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/candidates" {
			t.Errorf("path = %q, want /candidates", r.URL.Path)
		}
		if got := r.URL.Query().Get("category"); got != "video_editing" {
			t.Errorf("category = %q, want %q", got, "video_editing")
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want %q", got, "20")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"native_id": "tw-1",
				"url":       "https://x.com/p/1",
				"author":    "Client Co",
				"handle":    "clientco",
				"text":      "Need a video editor",
				"budget":    500.0,
				"likes":     3,
				"replies":   1,
				"reshares":  2,
			},
		})
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)

	candidates, err := source.Pull(context.Background(), model.CategoryVideoEditing, 20)
	if err != nil {
		t.Fatalf("Pull returned error: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("candidates count = %d, want 1", len(candidates))
	}

	c := candidates[0]
	if c.NativeID != "tw-1" {
		t.Errorf("NativeID = %q, want %q", c.NativeID, "tw-1")
	}
	if c.Category != model.CategoryVideoEditing {
		t.Errorf("Category = %q, want %q", c.Category, model.CategoryVideoEditing)
	}
	if c.Budget == nil || *c.Budget != 500 {
		t.Errorf("Budget = %v, want 500", c.Budget)
	}
	if c.Engagement.Likes != 3 || c.Engagement.Replies != 1 || c.Engagement.Reshares != 2 {
		t.Errorf("Engagement = %+v, want {3 1 2}", c.Engagement)
	}
}

// TestHTTPSource_Pull_ErrorStatus はAPIが異常ステータスを返した場合に
// エラーになることをテストする。
func TestHTTPSource_Pull_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)

	_, err := source.Pull(context.Background(), model.CategoryVideoEditing, 20)
	if err == nil {
		t.Fatal("Pull should fail on 500 response")
	}
}

// TestHTTPSource_Pull_EmptyResponse は空のレスポンスに対して空の候補を
// 返すことをテストする。
func TestHTTPSource_Pull_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)

	candidates, err := source.Pull(context.Background(), model.CategoryVideoEditing, 20)
	if err != nil {
		t.Fatalf("Pull returned error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates count = %d, want 0", len(candidates))
	}
}
