package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/quillhq/quill/internal/logger"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a test subject under the "content." prefix, which
// the QUILL stream captures (content.>). The test name avoids collisions.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "content.test." + t.Name()
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		RequestID string `json:"request_id"`
	}
	want := payload{RequestID: "req-42"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *payload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got payload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if received == nil {
		t.Fatal("handler was not called")
	}
	if received.RequestID != want.RequestID {
		t.Errorf("got %q, want %q", received.RequestID, want.RequestID)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	const wantReqID = "req-abc-123"

	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

func TestDurableName(t *testing.T) {
	got := durableName("content.requests.queued")
	if got != "quill_content_requests_queued" {
		t.Errorf("durableName = %q", got)
	}
}
