// Package notifier fires best-effort webhook notifications for pipeline
// lifecycle events. Delivery failures are swallowed: a flaky notification
// endpoint must never affect pipeline state.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/specq-run/specq/internal/models"
)

// Payload is the JSON body posted to the configured webhook.
type Payload struct {
	Event      string `json:"event"`
	ChangeID   string `json:"change_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
}

// Notifier posts lifecycle events to a webhook URL, filtered by an
// allow-list of event names.
type Notifier struct {
	client     *http.Client
	webhookURL string
	events     map[string]struct{}
}

// New constructs a Notifier. An empty webhookURL or events list makes
// Notify a no-op.
func New(client *http.Client, webhookURL string, events []string) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	allow := make(map[string]struct{}, len(events))
	for _, e := range events {
		allow[e] = struct{}{}
	}
	return &Notifier{client: client, webhookURL: webhookURL, events: allow}
}

// Notify posts event for wi if both a webhook URL is configured and event
// is in the allow-list. Transport errors are swallowed; Notify never
// returns an error and never blocks the caller's retry logic.
func (n *Notifier) Notify(ctx context.Context, event string, wi *models.WorkItem) {
	if n == nil || n.webhookURL == "" {
		return
	}
	if _, ok := n.events[event]; !ok {
		return
	}

	payload, err := json.Marshal(Payload{
		Event:      event,
		ChangeID:   wi.ID,
		Title:      wi.Title,
		Status:     string(wi.Status),
		RetryCount: wi.RetryCount,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
}
