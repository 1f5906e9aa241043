package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "UB-Client/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	first := &recordingNotifier{channel: "a"}
	second := &recordingNotifier{channel: "b", err: errors.New("down")}
	dispatcher := NewFanout(first, nil, second)
	if dispatcher.Len() != 2 {
		t.Fatalf("expected 2 channels, got %d", dispatcher.Len())
	}

	err := dispatcher.Notify(context.Background(), Event{JobID: "job-1"})
	if err == nil {
		t.Fatal("expected joined error from failing channel")
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("events not fanned out: %d %d", len(first.events), len(second.events))
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}

func TestWebhookPostsEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- event
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhook(srv.URL, time.Second)
	err := notifier.Notify(context.Background(), Event{
		Code:       xerrors.CodeChainCallFailure,
		JobID:      "job-7",
		Index:      7,
		Attempts:   3,
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	event := <-received
	if event.JobID != "job-7" || event.Index != 7 || event.Code != xerrors.CodeChainCallFailure {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestWebhookRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, 0).Notify(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for 502 response")
	}
	if err := NewWebhook("", 0).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured webhook should skip: %v", err)
	}
}
