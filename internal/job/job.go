package job

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Params are the detection settings submitted with an upload.
type Params struct {
	SequenceLength  int     `json:"sequence_length"`
	Threshold       float64 `json:"threshold"`
	OutputFrameRate int     `json:"output_frame_rate"`
}

func DefaultParams() Params {
	return Params{
		SequenceLength:  40,
		Threshold:       0.8,
		OutputFrameRate: 30,
	}
}

// Segment is one scored window of frames. JSON names match the wire shape
// the results page and downstream clients consume.
type Segment struct {
	StartFrame  int     `json:"chunk_start_frame"`
	EndFrame    int     `json:"chunk_end_frame"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Probability float64 `json:"fight_probability"`
	IsFight     bool    `json:"fight_detected"`
}

// Results holds everything produced by a completed analysis run.
type Results struct {
	TotalFrames           int       `json:"total_frames"`
	SequenceLength        int       `json:"sequence_length"`
	Threshold             float64   `json:"threshold"`
	OutputFrameRate       int       `json:"output_frame_rate"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	TotalSegments         int       `json:"total_segments"`
	FightSegments         int       `json:"fight_segments"`
	Segments              []Segment `json:"predictions"`
}

// Incidents returns only the segments classified as fights.
func (r *Results) Incidents() []Segment {
	var out []Segment
	for _, s := range r.Segments {
		if s.IsFight {
			out = append(out, s)
		}
	}
	return out
}

type Job struct {
	ID          string
	Filename    string
	SourceKey   string
	ContentType string
	Params      Params
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Results     *Results
	Report      string
	Error       string
}

// IsDone reports whether the job reached a terminal state.
func (j *Job) IsDone() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
