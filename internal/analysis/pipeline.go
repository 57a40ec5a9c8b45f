package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fightlens/fightlens/internal/job"
	"github.com/fightlens/fightlens/internal/report"
)

type ObjectStorage interface {
	DownloadToFile(ctx context.Context, key string, destPath string) error
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Reporter turns a completed job into a security report. Implemented by the
// report package; nil when AI features are disabled.
type Reporter interface {
	Generate(ctx context.Context, j *job.Job) (string, error)
}

// Pipeline runs one analysis job end to end: fetch footage, probe it,
// window it, score every window, store the results and attach a report.
type Pipeline struct {
	Store    *job.Store
	Storage  ObjectStorage
	Detector Detector
	Reporter Reporter

	// ProbeFunc defaults to Probe; tests swap it to avoid shelling out.
	ProbeFunc func(ctx context.Context, path string) (VideoInfo, error)
}

func (p *Pipeline) Run(ctx context.Context, j *job.Job) {
	start := time.Now()
	slog.Info("analysis: starting job", "job_id", j.ID, "filename", j.Filename)

	results, err := p.analyze(ctx, j)
	if err != nil {
		slog.Error("analysis: job failed", "job_id", j.ID, "error", err)
		if ferr := p.Store.Fail(j.ID, err.Error()); ferr != nil {
			slog.Error("analysis: could not record failure", "job_id", j.ID, "error", ferr)
		}
		// Failed jobs never reach the results page; drop the footage.
		if derr := p.Storage.DeleteObject(ctx, j.SourceKey); derr != nil {
			slog.Warn("analysis: could not delete footage", "job_id", j.ID, "error", derr)
		}
		return
	}

	results.ProcessingTimeSeconds = time.Since(start).Seconds()
	if err := p.Store.Complete(j.ID, results); err != nil {
		slog.Error("analysis: could not record completion", "job_id", j.ID, "error", err)
		return
	}

	slog.Info("analysis: job completed",
		"job_id", j.ID,
		"total_frames", results.TotalFrames,
		"fight_segments", results.FightSegments,
		"duration_s", results.ProcessingTimeSeconds,
	)

	p.attachReport(ctx, j.ID)
}

func (p *Pipeline) analyze(ctx context.Context, j *job.Job) (*job.Results, error) {
	tmpFile, err := os.CreateTemp("", "fightlens-*"+filepath.Ext(j.SourceKey))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := p.Storage.DownloadToFile(ctx, j.SourceKey, tmpPath); err != nil {
		return nil, fmt.Errorf("fetch footage: %w", err)
	}

	probe := p.ProbeFunc
	if probe == nil {
		probe = Probe
	}
	info, err := probe(ctx, tmpPath)
	if err != nil {
		return nil, err
	}

	srcURL, err := p.Storage.GenerateDownloadURL(ctx, j.SourceKey, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("presign footage: %w", err)
	}
	src := SourceVideo{URL: srcURL, FPS: info.FPS}

	var segments []job.Segment
	for _, w := range Windows(info.TotalFrames, j.Params.SequenceLength) {
		prob, err := p.Detector.Score(ctx, src, w)
		if err != nil {
			return nil, fmt.Errorf("score frames %d-%d: %w", w.StartFrame, w.EndFrame, err)
		}
		segments = append(segments, job.Segment{
			StartFrame:  w.StartFrame,
			EndFrame:    w.EndFrame,
			StartTime:   FormatTimestamp(w.StartFrame, info.FPS),
			EndTime:     FormatTimestamp(w.EndFrame, info.FPS),
			Probability: prob,
			IsFight:     prob > j.Params.Threshold,
		})
	}

	results := &job.Results{
		TotalFrames:     info.TotalFrames,
		SequenceLength:  j.Params.SequenceLength,
		Threshold:       j.Params.Threshold,
		OutputFrameRate: j.Params.OutputFrameRate,
		TotalSegments:   len(segments),
		Segments:        segments,
	}
	results.FightSegments = len(results.Incidents())
	return results, nil
}

// attachReport stores a report on the completed job. Report failures never
// fail the job; a fallback report is stored instead.
func (p *Pipeline) attachReport(ctx context.Context, jobID string) {
	j, err := p.Store.Get(jobID)
	if err != nil {
		slog.Error("analysis: report lookup failed", "job_id", jobID, "error", err)
		return
	}

	text := ""
	if p.Reporter != nil {
		text, err = p.Reporter.Generate(ctx, j)
		if err != nil {
			slog.Warn("analysis: report generation failed, using fallback", "job_id", jobID, "error", err)
			text = ""
		}
	}
	if text == "" {
		text = report.Fallback(j)
	}

	if err := p.Store.SetReport(jobID, text); err != nil {
		slog.Error("analysis: could not store report", "job_id", jobID, "error", err)
	}
}

// Windows partitions [0, totalFrames) into runs of seqLen frames; the last
// window is truncated to the final frame.
func Windows(totalFrames, seqLen int) []Window {
	if totalFrames <= 0 || seqLen <= 0 {
		return nil
	}

	var out []Window
	for start := 0; start < totalFrames; start += seqLen {
		end := start + seqLen - 1
		if end > totalFrames-1 {
			end = totalFrames - 1
		}
		out = append(out, Window{StartFrame: start, EndFrame: end})
	}
	return out
}

// FormatTimestamp renders a frame position as MM:SS.
func FormatTimestamp(frame int, fps float64) string {
	if fps <= 0 {
		fps = defaultFPS
	}
	totalSeconds := int(float64(frame) / fps)
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
