// Package client is the Go SDK for a running analysis server. It mirrors
// what the browser front end does: upload footage, poll the job status on
// a fixed cadence and hand back the results location.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fightlens/fightlens/internal/job"
	"github.com/fightlens/fightlens/internal/validate"
)

const DefaultPollInterval = 2 * time.Second

type Client struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// MaxUploadBytes is checked locally before any bytes go on the wire.
	MaxUploadBytes int64

	// PollInterval is the delay before every status check, including the
	// first one.
	PollInterval time.Duration

	// OnPoll, when set, is called after each non-terminal status check with
	// the snapshot and the time elapsed since polling began.
	OnPoll func(info StatusInfo, elapsed time.Duration)
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		HTTPClient:     http.DefaultClient,
		MaxUploadBytes: validate.MaxUploadBytes,
		PollInterval:   DefaultPollInterval,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

// JobFailedError reports a job that reached the failed state. The message
// is the server's error text, verbatim.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Submit uploads the video at path and returns the new job ID. Files over
// the size limit are rejected locally, before any request is made.
func (c *Client) Submit(ctx context.Context, path string, params job.Params) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if c.MaxUploadBytes > 0 && info.Size() > c.MaxUploadBytes {
		return "", fmt.Errorf("%s is %d bytes, over the %d byte upload limit", filepath.Base(path), info.Size(), c.MaxUploadBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("video", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	fields := map[string]string{
		"sequence_length":   strconv.Itoa(params.SequenceLength),
		"threshold":         strconv.FormatFloat(params.Threshold, 'f', -1, 64),
		"output_frame_rate": strconv.Itoa(params.OutputFrameRate),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		JobID string `json:"job_id"`
		Error string `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if body.Error != "" {
		return "", fmt.Errorf("%s", body.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode upload response: %w", decodeErr)
	}
	if body.JobID == "" {
		return "", fmt.Errorf("upload response has no job id")
	}
	return body.JobID, nil
}

// StatusInfo is one snapshot of a job's lifecycle state.
type StatusInfo struct {
	Status         string  `json:"status"`
	JobID          string  `json:"job_id"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error"`
}

func (c *Client) Status(ctx context.Context, jobID string) (StatusInfo, error) {
	var info StatusInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status/"+jobID, nil)
	if err != nil {
		return info, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return info, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return info, fmt.Errorf("job %s not found", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("status check failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode status response: %w", err)
	}
	return info, nil
}

// Outcome is the terminal result of a successful analysis.
type Outcome struct {
	JobID          string
	ProcessingTime float64
	ResultsURL     string
}

// PollStatus checks the job on a fixed cadence until it reaches a terminal
// state. The first check happens a full interval after the call, matching
// the grace period the server needs to pick the job up. A failed job comes
// back as *JobFailedError; transport errors end the poll immediately.
func (c *Client) PollStatus(ctx context.Context, jobID string) (Outcome, error) {
	start := time.Now()
	timer := time.NewTimer(c.pollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}

		info, err := c.Status(ctx, jobID)
		if err != nil {
			return Outcome{}, err
		}

		switch info.Status {
		case "completed":
			return Outcome{
				JobID:          jobID,
				ProcessingTime: info.ProcessingTime,
				ResultsURL:     c.ResultsURL(jobID),
			}, nil
		case "failed":
			message := info.Error
			if message == "" {
				message = "Unknown error"
			}
			return Outcome{}, &JobFailedError{JobID: jobID, Message: message}
		}

		if c.OnPoll != nil {
			c.OnPoll(info, time.Since(start))
		}
		timer.Reset(c.pollInterval())
	}
}

// ResultsURL returns the browser-facing results page for a job.
func (c *Client) ResultsURL(jobID string) string {
	return c.BaseURL + "/results/" + jobID
}

// JobResults is the full detection payload for a completed job.
type JobResults struct {
	Status  string       `json:"status"`
	Results *job.Results `json:"results"`
	Report  string       `json:"report"`
	Error   string       `json:"error"`
}

// Results fetches the detection data and stored report for a completed job.
func (c *Client) Results(ctx context.Context, jobID string) (*JobResults, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/results/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out JobResults
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode results response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results: %s", orUnknown(out.Error))
	}
	return &out, nil
}

// RegenerateReport asks the server for a fresh security report and returns
// the new report HTML.
func (c *Client) RegenerateReport(ctx context.Context, jobID string) (string, error) {
	var body struct {
		Status string `json:"status"`
		Report string `json:"report"`
		Error  string `json:"error"`
	}
	if err := c.postJSON(ctx, "/api/regenerate-report/"+jobID, nil, &body); err != nil {
		return "", err
	}
	if body.Status != "success" {
		return "", fmt.Errorf("regenerate report: %s", orUnknown(body.Error))
	}
	return body.Report, nil
}

// Chat sends one question about a completed job and returns the answer.
func (c *Client) Chat(ctx context.Context, jobID string, message string) (string, error) {
	var body struct {
		Status   string `json:"status"`
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	payload := map[string]string{"message": message}
	if err := c.postJSON(ctx, "/api/chat/"+jobID, payload, &body); err != nil {
		return "", err
	}
	if body.Status != "success" {
		return "", fmt.Errorf("chat: %s", orUnknown(body.Error))
	}
	return body.Response, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orUnknown(message string) string {
	if message == "" {
		return "unknown error"
	}
	return message
}
