package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fightlens/fightlens/internal/job"
)

func completedJob() *job.Job {
	return &job.Job{
		ID:       "job-1",
		Filename: "stadium_cam3.mp4",
		Status:   job.StatusCompleted,
		Results: &job.Results{
			TotalFrames:           240,
			Threshold:             0.8,
			TotalSegments:         6,
			FightSegments:         2,
			ProcessingTimeSeconds: 12.5,
			Segments: []job.Segment{
				{StartFrame: 0, EndFrame: 39, StartTime: "00:00", EndTime: "00:01", Probability: 0.42},
				{StartFrame: 40, EndFrame: 79, StartTime: "00:01", EndTime: "00:02", Probability: 0.91, IsFight: true},
				{StartFrame: 80, EndFrame: 119, StartTime: "00:02", EndTime: "00:03", Probability: 0.88, IsFight: true},
			},
		},
	}
}

type fakeLLM struct {
	content      string
	status       int
	lastMessages []map[string]string
	lastModel    string
	calls        int
}

func (f *fakeLLM) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls++

		var req struct {
			Model    string              `json:"model"`
			Messages []map[string]string `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastModel = req.Model
		f.lastMessages = req.Messages

		if f.status != 0 {
			http.Error(w, "backend unavailable", f.status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": f.content}},
			},
		})
	}
}

func newTestClient(t *testing.T, llm *fakeLLM) *Client {
	t.Helper()
	server := httptest.NewServer(llm.handler())
	t.Cleanup(server.Close)
	return New(server.URL+"/v1", "test-key", "test-model")
}

func TestGenerateBuildsReportWithBanner(t *testing.T) {
	llm := &fakeLLM{content: `<h3 class="mt-4 mb-3">Executive Summary</h3><p>Two incidents.</p>`}
	client := newTestClient(t, llm)

	got, err := client.Generate(context.Background(), completedJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(got, "alert-danger") {
		t.Errorf("report missing incident banner: %q", got)
	}
	if !strings.Contains(got, "Executive Summary") {
		t.Errorf("report missing generated body: %q", got)
	}
	if llm.lastModel != "test-model" {
		t.Errorf("model = %q, want test-model", llm.lastModel)
	}
}

func TestGenerateIncludesDetectionData(t *testing.T) {
	llm := &fakeLLM{content: "<p>ok</p>"}
	client := newTestClient(t, llm)

	_, err := client.Generate(context.Background(), completedJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(llm.lastMessages) != 2 {
		t.Fatalf("message count = %d, want 2", len(llm.lastMessages))
	}
	user := llm.lastMessages[1]["content"]
	for _, want := range []string{"stadium_cam3.mp4", "Total frames processed: 240", "Total incidents detected: 2", "Incident #1", "Frames: 40 to 79"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestGenerateStripsMarkdownFences(t *testing.T) {
	llm := &fakeLLM{content: "```html\n<p>fenced body</p>\n```"}
	client := newTestClient(t, llm)

	got, err := client.Generate(context.Background(), completedJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "```") {
		t.Errorf("fences not stripped: %q", got)
	}
	if !strings.Contains(got, "<p>fenced body</p>") {
		t.Errorf("body lost while stripping fences: %q", got)
	}
}

func TestGenerateNoIncidentsBanner(t *testing.T) {
	llm := &fakeLLM{content: "<p>calm</p>"}
	client := newTestClient(t, llm)

	j := completedJob()
	for i := range j.Results.Segments {
		j.Results.Segments[i].IsFight = false
	}

	got, err := client.Generate(context.Background(), j)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "alert-success") {
		t.Errorf("expected no-incident banner, got %q", got)
	}
}

func TestGenerateBackendFailure(t *testing.T) {
	llm := &fakeLLM{status: http.StatusInternalServerError}
	client := newTestClient(t, llm)

	_, err := client.Generate(context.Background(), completedJob())
	if err == nil {
		t.Fatal("expected error when backend fails")
	}
}

func TestGenerateRequiresResults(t *testing.T) {
	llm := &fakeLLM{content: "<p>ok</p>"}
	client := newTestClient(t, llm)

	_, err := client.Generate(context.Background(), &job.Job{ID: "empty"})
	if err == nil {
		t.Fatal("expected error for job without results")
	}
	if llm.calls != 0 {
		t.Errorf("backend called %d times, want 0", llm.calls)
	}
}

func TestReplyAnswersWithContext(t *testing.T) {
	llm := &fakeLLM{content: "  The first incident starts at 00:01.  "}
	client := newTestClient(t, llm)

	got, err := client.Reply(context.Background(), completedJob(), "when does the first fight start?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The first incident starts at 00:01." {
		t.Errorf("reply = %q, want trimmed answer", got)
	}

	user := llm.lastMessages[1]["content"]
	if !strings.Contains(user, "when does the first fight start?") {
		t.Errorf("prompt missing user question:\n%s", user)
	}
	if !strings.Contains(user, "Incident #2") {
		t.Errorf("prompt missing incident context:\n%s", user)
	}
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fences", "<p>plain</p>", "<p>plain</p>"},
		{"html fence", "```html\n<p>x</p>\n```", "<p>x</p>"},
		{"bare fence", "```\n<p>x</p>\n```", "<p>x</p>"},
		{"leading whitespace", "  \n```html\n<p>x</p>\n```  ", "<p>x</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMarkdownFences(tt.content); got != tt.want {
				t.Errorf("stripMarkdownFences(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestFallbackWithIncidents(t *testing.T) {
	got := Fallback(completedJob())

	for _, want := range []string{"ELEVATED", "Total frames analyzed: 240", "Incidents detected: 2", "Review the highlighted timestamps"} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback report missing %q", want)
		}
	}
}

func TestFallbackWithoutIncidents(t *testing.T) {
	j := completedJob()
	for i := range j.Results.Segments {
		j.Results.Segments[i].IsFight = false
	}

	got := Fallback(j)
	if !strings.Contains(got, "NORMAL") {
		t.Errorf("fallback report missing NORMAL threat level:\n%s", got)
	}
	if strings.Contains(got, "ELEVATED") {
		t.Errorf("fallback report should not be ELEVATED:\n%s", got)
	}
}

func TestFallbackWithoutResults(t *testing.T) {
	got := Fallback(&job.Job{ID: "bare"})
	if got != Unavailable {
		t.Errorf("fallback for bare job = %q, want Unavailable placeholder", got)
	}
}
