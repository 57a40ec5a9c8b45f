package analysis

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoInfo is what the pipeline needs to window a video: how many frames it
// has and how fast they play.
type VideoInfo struct {
	TotalFrames int
	FPS         float64
}

const defaultFPS = 30

// Probe reads frame count and frame rate via ffprobe. Containers that do not
// carry nb_frames fall back to duration * fps; an unreported frame rate
// falls back to 30.
func Probe(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,avg_frame_rate,duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbeOutput(string(output))
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return info, nil
}

func parseProbeOutput(output string) (VideoInfo, error) {
	var nbFrames int
	var duration float64
	fps := float64(0)

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || value == "N/A" {
			continue
		}
		switch key {
		case "nb_frames":
			if n, err := strconv.Atoi(value); err == nil {
				nbFrames = n
			}
		case "avg_frame_rate":
			fps = parseFrameRate(value)
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				duration = d
			}
		}
	}

	if fps <= 0 {
		fps = defaultFPS
	}
	if nbFrames <= 0 && duration > 0 {
		nbFrames = int(duration * fps)
	}
	if nbFrames <= 0 {
		return VideoInfo{}, errors.New("no frames found in the video")
	}

	return VideoInfo{TotalFrames: nbFrames, FPS: fps}, nil
}

// parseFrameRate handles ffprobe rationals like "30000/1001" or "25/1".
func parseFrameRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		f, _ := strconv.ParseFloat(value, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
