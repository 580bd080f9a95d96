package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/specq-run/specq/internal/models"
)

func TestNotifyPostsAllowedEvent(t *testing.T) {
	received := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.Client(), srv.URL, []string{"change.completed"})
	n.Notify(context.Background(), "change.completed", &models.WorkItem{ID: "add-auth", Title: "Add auth", Status: models.StatusAccepted})

	select {
	case p := <-received:
		if p.ChangeID != "add-auth" || p.Event != "change.completed" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	default:
		t.Fatal("expected webhook to be called")
	}
}

func TestNotifySkipsEventNotInAllowList(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := New(srv.Client(), srv.URL, []string{"change.completed"})
	n.Notify(context.Background(), "change.needs_review", &models.WorkItem{ID: "x"})

	if called {
		t.Fatal("expected no call for unlisted event")
	}
}

func TestNotifyNoURLIsNoOp(t *testing.T) {
	n := New(nil, "", []string{"change.completed"})
	n.Notify(context.Background(), "change.completed", &models.WorkItem{ID: "x"})
}

func TestNotifySwallowsTransportErrors(t *testing.T) {
	n := New(nil, "http://127.0.0.1:1", []string{"change.failed"})
	n.Notify(context.Background(), "change.failed", &models.WorkItem{ID: "x"})
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), "change.completed", &models.WorkItem{ID: "x"})
}
