package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fightlens/fightlens/internal/httputil"
	"github.com/fightlens/fightlens/internal/validate"
)

type ObjectStorage interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Reporter regenerates the security report for a completed job.
type Reporter interface {
	Generate(ctx context.Context, j *Job) (string, error)
}

// Assistant answers questions about a completed job's detections.
type Assistant interface {
	Reply(ctx context.Context, j *Job, message string) (string, error)
}

type Handler struct {
	store          *Store
	storage        ObjectStorage
	maxUploadBytes int64
	reporter       Reporter
	assistant      Assistant
}

func NewHandler(store *Store, storage ObjectStorage, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = validate.MaxUploadBytes
	}
	return &Handler{
		store:          store,
		storage:        storage,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) SetReporter(r Reporter) {
	h.reporter = r
}

func (h *Handler) SetAssistant(a Assistant) {
	h.assistant = a
}

// Upload accepts multipart footage, stores it and registers a pending job.
// The body is capped before any of it is read; oversized uploads never
// reach storage.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("video")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, h.uploadLimitMessage())
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer func() { _ = file.Close() }()

	if msg := validate.Filename(header.Filename); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	params, msg := parseParams(r)
	if msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	jobID := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	key := "uploads/" + jobID + ext

	if err := h.storage.Save(r.Context(), key, file, contentTypeForExtension(ext)); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, h.uploadLimitMessage())
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not store uploaded file")
		return
	}

	h.store.Create(&Job{
		ID:          jobID,
		Filename:    filepath.Base(header.Filename),
		SourceKey:   key,
		ContentType: contentTypeForExtension(ext),
		Params:      params,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (h *Handler) uploadLimitMessage() string {
	return fmt.Sprintf("File exceeds the %d MB upload limit", h.maxUploadBytes/(1024*1024))
}

func parseParams(r *http.Request) (Params, string) {
	params := DefaultParams()

	if v := r.FormValue("sequence_length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, "invalid sequence_length"
		}
		params.SequenceLength = n
	}
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, "invalid threshold"
		}
		params.Threshold = f
	}
	if v := r.FormValue("output_frame_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, "invalid output_frame_rate"
		}
		params.OutputFrameRate = n
	}

	if msg := validate.SequenceLength(params.SequenceLength); msg != "" {
		return params, msg
	}
	if msg := validate.Threshold(params.Threshold); msg != "" {
		return params, msg
	}
	if msg := validate.OutputFrameRate(params.OutputFrameRate); msg != "" {
		return params, msg
	}
	return params, ""
}

type statusResponse struct {
	Status         string  `json:"status"`
	JobID          string  `json:"job_id"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Status reports where a job is in its lifecycle. Pending jobs are reported
// as processing: the queueing instant is invisible on the wire.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	resp := statusResponse{Status: string(j.Status), JobID: j.ID}
	switch j.Status {
	case StatusPending:
		resp.Status = string(StatusProcessing)
	case StatusFailed:
		resp.Error = j.Error
		if resp.Error == "" {
			resp.Error = "Unknown error"
		}
	case StatusCompleted:
		if j.Results != nil {
			resp.ProcessingTime = j.Results.ProcessingTimeSeconds
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

type resultsResponse struct {
	Status  string   `json:"status"`
	Results *Results `json:"results"`
	Report  string   `json:"report"`
}

// ResultsData serves the raw detection data for a completed job.
func (h *Handler) ResultsData(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	if j.Status != StatusCompleted {
		msg := j.Error
		if msg == "" {
			msg = "Processing not complete"
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.StatusBody{Status: string(j.Status), Error: msg})
		return
	}

	report := j.Report
	if report == "" {
		report = "Report not available"
	}
	httputil.WriteJSON(w, http.StatusOK, resultsResponse{
		Status:  string(StatusCompleted),
		Results: j.Results,
		Report:  report,
	})
}

type reportResponse struct {
	Status string `json:"status"`
	Report string `json:"report"`
}

// RegenerateReport rebuilds the security report for a completed job.
func (h *Handler) RegenerateReport(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if j.Status != StatusCompleted {
		msg := j.Error
		if msg == "" {
			msg = "Processing not complete"
		}
		httputil.WriteStatusError(w, http.StatusBadRequest, msg)
		return
	}
	if h.reporter == nil {
		httputil.WriteStatusError(w, http.StatusForbidden, "Report generation is not enabled")
		return
	}

	text, err := h.reporter.Generate(r.Context(), j)
	if err != nil {
		httputil.WriteStatusError(w, http.StatusInternalServerError, "Error regenerating report: "+err.Error())
		return
	}

	if err := h.store.SetReport(j.ID, text); err != nil {
		httputil.WriteStatusError(w, http.StatusInternalServerError, "could not store report")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, reportResponse{Status: "success", Report: text})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// Chat answers one assistant question about a completed job.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteStatusError(w, http.StatusNotFound, "Job not found")
		return
	}
	if j.Status != StatusCompleted {
		msg := j.Error
		if msg == "" {
			msg = "Processing not complete"
		}
		httputil.WriteStatusError(w, http.StatusBadRequest, msg)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteStatusError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if msg := validate.ChatMessage(req.Message); msg != "" {
		httputil.WriteStatusError(w, http.StatusBadRequest, msg)
		return
	}

	if h.assistant == nil {
		httputil.WriteStatusError(w, http.StatusForbidden, "Chat is not enabled")
		return
	}

	answer, err := h.assistant.Reply(r.Context(), j, req.Message)
	if err != nil {
		// The chat panel shows replies inline; a soft retry message reads
		// better there than an error state.
		slog.Error("chat backend failed", "job_id", j.ID, "error", err)
		answer = chatRetryMessage
	}

	httputil.WriteJSON(w, http.StatusOK, chatResponse{Status: "success", Response: answer})
}

const chatRetryMessage = "I'm analyzing the security footage now. Could you please try your question again in a moment?"

func contentTypeForExtension(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
