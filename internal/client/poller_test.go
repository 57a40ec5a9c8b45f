package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPollerDeliversOneResult(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
		{"status": "completed", "job_id": "j1", "processing_time": 1.0},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	p := NewPoller(newTestClient(server.URL))
	results, err := p.Start(context.Background(), "j1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Outcome.ResultsURL != server.URL+"/results/j1" {
			t.Errorf("results url = %q", res.Outcome.ResultsURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}

	select {
	case res, ok := <-results:
		if ok {
			t.Errorf("second result delivered: %+v", res)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollerRefusesConcurrentStart(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	p := NewPoller(newTestClient(server.URL))
	if _, err := p.Start(context.Background(), "j1"); err != nil {
		t.Fatalf("first start: %v", err)
	}

	if _, err := p.Start(context.Background(), "j2"); !errors.Is(err, ErrPollInProgress) {
		t.Errorf("second start error = %v, want ErrPollInProgress", err)
	}

	p.Stop()
}

func TestPollerStopCancelsPoll(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	p := NewPoller(newTestClient(server.URL))
	results, err := p.Start(context.Background(), "j1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	p.Stop()

	select {
	case res := <-results:
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("result error = %v, want context.Canceled", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("no result after stop")
	}
	if p.Active() {
		t.Error("poller still active after stop")
	}
}

func TestPollerCanRestartAfterCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "completed", "job_id": "j1"})
	}))
	defer server.Close()

	p := NewPoller(newTestClient(server.URL))

	for i := 0; i < 2; i++ {
		results, err := p.Start(context.Background(), "j1")
		if err != nil {
			t.Fatalf("start %d: %v", i+1, err)
		}
		select {
		case res := <-results:
			if res.Err != nil {
				t.Fatalf("poll %d: %v", i+1, res.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("poll %d never finished", i+1)
		}
	}
}

func TestPollerStopWithoutStart(t *testing.T) {
	p := NewPoller(newTestClient("http://example.invalid"))
	p.Stop()

	if p.Active() {
		t.Error("poller active without start")
	}
}
