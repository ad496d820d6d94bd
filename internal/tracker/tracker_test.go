package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestTracker(t *testing.T, handler http.HandlerFunc) (*HTTPTracker, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	tr := &HTTPTracker{
		httpClient: srv.Client(),
		owner:      "acme",
		repo:       "widgets",
		token:      "test-token",
	}
	return tr, srv
}

func TestGetDecodesIssue(t *testing.T) {
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		_ = json.NewEncoder(w).Encode(apiIssue{
			Number: 100,
			Title:  "add index",
			Body:   "please add an index",
			State:  "open",
			Labels: []struct {
				Name string `json:"name"`
			}{{Name: "backend"}},
		})
	})
	defer srv.Close()
	tr.issuesBase = srv.URL

	item, err := tr.Get(context.Background(), 100)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Number != 100 || item.Title != "add index" || len(item.Labels) != 1 || item.Labels[0] != "backend" {
		t.Errorf("item = %+v", item)
	}
}

func TestCommentPostsBody(t *testing.T) {
	var gotBody map[string]string
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})
	defer srv.Close()
	tr.issuesBase = srv.URL

	if err := tr.Comment(context.Background(), 100, "hello"); err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	if gotBody["body"] != "hello" {
		t.Errorf("posted body = %v", gotBody)
	}
}

func TestCloseSendsClosedState(t *testing.T) {
	var gotBody map[string]string
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	})
	defer srv.Close()
	tr.issuesBase = srv.URL

	if err := tr.Close(context.Background(), 100); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if gotBody["state"] != "closed" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDetectLoopCountsReopens(t *testing.T) {
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]timelineEvent{
			{Event: "closed"}, {Event: "reopened"}, {Event: "closed"}, {Event: "reopened"}, {Event: "closed"},
		})
	})
	defer srv.Close()
	tr.issuesBase = srv.URL

	looped, err := tr.DetectLoop(context.Background(), 100, 1)
	if err != nil {
		t.Fatalf("DetectLoop failed: %v", err)
	}
	if !looped {
		t.Error("expected loop detected with 2 reopens > maxReopens=1")
	}

	looped, err = tr.DetectLoop(context.Background(), 100, 2)
	if err != nil {
		t.Fatalf("DetectLoop failed: %v", err)
	}
	if looped {
		t.Error("expected no loop with 2 reopens <= maxReopens=2")
	}
}

func TestSetBoardStatusNoOpWithoutProjectConfigured(t *testing.T) {
	called := false
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer srv.Close()

	if err := tr.SetBoardStatus(context.Background(), 100, "in-progress"); err != nil {
		t.Fatalf("SetBoardStatus failed: %v", err)
	}
	if called {
		t.Error("expected no HTTP call when no project is configured")
	}
}

func TestRetriesOnRateLimit(t *testing.T) {
	attempts := 0
	tr, srv := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(apiIssue{Number: 1, State: "open"})
	})
	defer srv.Close()
	tr.issuesBase = srv.URL

	if _, err := tr.Get(context.Background(), 1); err != nil {
		t.Fatalf("Get failed after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}
