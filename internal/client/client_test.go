package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fightlens/fightlens/internal/job"
)

func writeTempVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write temp video: %v", err)
	}
	return path
}

// statusScript serves /status responses from a fixed sequence, repeating
// the last entry once the script runs out.
type statusScript struct {
	responses []map[string]any
	hits      atomic.Int64
	times     []time.Time
}

func (s *statusScript) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(s.hits.Add(1)) - 1
		s.times = append(s.times, time.Now())
		if n >= len(s.responses) {
			n = len(s.responses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.responses[n])
	}
}

func newTestClient(serverURL string) *Client {
	c := New(serverURL)
	c.PollInterval = 20 * time.Millisecond
	return c
}

func TestSubmitUploadsMultipart(t *testing.T) {
	var gotFilename string
	var gotFields map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("video")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			_ = file.Close()
			gotFilename = header.Filename
		}
		gotFields = map[string]string{
			"sequence_length":   r.FormValue("sequence_length"),
			"threshold":         r.FormValue("threshold"),
			"output_frame_rate": r.FormValue("output_frame_rate"),
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "abc-123"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	jobID, err := c.Submit(context.Background(), writeTempVideo(t, 1024), job.DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobID != "abc-123" {
		t.Errorf("job id = %q", jobID)
	}
	if gotFilename != "clip.mp4" {
		t.Errorf("filename = %q", gotFilename)
	}
	want := map[string]string{"sequence_length": "40", "threshold": "0.8", "output_frame_rate": "30"}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}
}

func TestSubmitRejectsOversizedFileLocally(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.MaxUploadBytes = 512

	_, err := c.Submit(context.Background(), writeTempVideo(t, 1024), job.DefaultParams())
	if err == nil {
		t.Fatal("expected error for oversized file")
	}
	if requests.Load() != 0 {
		t.Errorf("oversized upload made %d requests, want 0", requests.Load())
	}
}

func TestSubmitReturnsServerErrorVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid file type"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Submit(context.Background(), writeTempVideo(t, 64), job.DefaultParams())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Invalid file type" {
		t.Errorf("error = %q, want the server message verbatim", err.Error())
	}
}

func TestSubmitMissingFile(t *testing.T) {
	c := newTestClient("http://example.invalid")
	if _, err := c.Submit(context.Background(), "/does/not/exist.mp4", job.DefaultParams()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPollStatusWaitsThenReturnsOutcome(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
		{"status": "processing", "job_id": "j1"},
		{"status": "completed", "job_id": "j1", "processing_time": 4.2},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	c := newTestClient(server.URL)
	start := time.Now()
	outcome, err := c.PollStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if script.hits.Load() != 3 {
		t.Errorf("status checks = %d, want exactly 3", script.hits.Load())
	}
	if elapsed := time.Since(start); elapsed < 3*c.PollInterval {
		t.Errorf("poll finished in %v, want at least %v", elapsed, 3*c.PollInterval)
	}
	// The first check is delayed by a full interval.
	if firstGap := script.times[0].Sub(start); firstGap < c.PollInterval {
		t.Errorf("first check after %v, want at least %v", firstGap, c.PollInterval)
	}
	if outcome.ResultsURL != server.URL+"/results/j1" {
		t.Errorf("results url = %q", outcome.ResultsURL)
	}
	if outcome.ProcessingTime != 4.2 {
		t.Errorf("processing time = %v, want 4.2", outcome.ProcessingTime)
	}
}

func TestPollStatusFailedJob(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "failed", "job_id": "j1", "error": "no frames found in the video"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.PollStatus(context.Background(), "j1")

	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *JobFailedError", err)
	}
	if failed.Message != "no frames found in the video" {
		t.Errorf("message = %q, want the server error verbatim", failed.Message)
	}
	if script.hits.Load() != 1 {
		t.Errorf("status checks = %d, want 1", script.hits.Load())
	}
}

func TestPollStatusFailedJobWithoutMessage(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "failed", "job_id": "j1"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.PollStatus(context.Background(), "j1")

	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *JobFailedError", err)
	}
	if failed.Message != "Unknown error" {
		t.Errorf("message = %q, want Unknown error", failed.Message)
	}
}

func TestPollStatusTransportErrorStopsImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := newTestClient(server.URL)
	_, err := c.PollStatus(context.Background(), "j1")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var failed *JobFailedError
	if errors.As(err, &failed) {
		t.Error("transport error reported as a job failure")
	}
}

func TestPollStatusContextCancel(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	c := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.PollStatus(ctx, "j1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPollStatusReportsProgress(t *testing.T) {
	script := &statusScript{responses: []map[string]any{
		{"status": "processing", "job_id": "j1"},
		{"status": "processing", "job_id": "j1"},
		{"status": "completed", "job_id": "j1"},
	}}
	server := httptest.NewServer(script.handler())
	defer server.Close()

	c := newTestClient(server.URL)
	var elapsed []time.Duration
	c.OnPoll = func(info StatusInfo, d time.Duration) {
		if info.Status != "processing" {
			t.Errorf("callback for status %q", info.Status)
		}
		elapsed = append(elapsed, d)
	}

	if _, err := c.PollStatus(context.Background(), "j1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the two processing checks report progress; the terminal check
	// returns instead.
	if len(elapsed) != 2 {
		t.Fatalf("callback count = %d, want 2", len(elapsed))
	}
	if elapsed[1] <= elapsed[0] {
		t.Errorf("elapsed not increasing: %v", elapsed)
	}
}

func TestStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Job not found"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Status(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestResultsReturnsReportAndSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/results/j1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"report": "<h3>Report</h3>",
			"results": map[string]any{
				"total_frames":   100,
				"total_segments": 3,
				"fight_segments": 1,
				"predictions": []map[string]any{
					{"chunk_start_frame": 0, "chunk_end_frame": 39, "fight_probability": 0.9, "fight_detected": true},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Results(context.Background(), "j1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Report != "<h3>Report</h3>" {
		t.Errorf("report = %q", got.Report)
	}
	if got.Results == nil || got.Results.TotalFrames != 100 {
		t.Fatalf("results = %+v", got.Results)
	}
	if len(got.Results.Segments) != 1 || !got.Results.Segments[0].IsFight {
		t.Errorf("segments = %+v", got.Results.Segments)
	}
}

func TestResultsWhileProcessing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing", "error": "Processing not complete"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Results(context.Background(), "j1")
	if err == nil {
		t.Fatal("expected error while processing")
	}
	if !strings.Contains(err.Error(), "Processing not complete") {
		t.Errorf("error = %v, want the server message", err)
	}
}

func TestRegenerateReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/regenerate-report/j1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "report": "<h3>Fresh</h3>"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	report, err := c.RegenerateReport(context.Background(), "j1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != "<h3>Fresh</h3>" {
		t.Errorf("report = %q", report)
	}
}

func TestRegenerateReportServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "llm down"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.RegenerateReport(context.Background(), "j1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestChat(t *testing.T) {
	var gotMessage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotMessage = body.Message
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "response": "At 00:01."})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	answer, err := c.Chat(context.Background(), "j1", "When does it start?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "At 00:01." {
		t.Errorf("answer = %q", answer)
	}
	if gotMessage != "When does it start?" {
		t.Errorf("server got message %q", gotMessage)
	}
}

func TestResultsURL(t *testing.T) {
	c := New("http://localhost:8080/")
	if got := c.ResultsURL("j1"); got != "http://localhost:8080/results/j1" {
		t.Errorf("results url = %q", got)
	}
}
