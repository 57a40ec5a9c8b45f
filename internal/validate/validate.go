package validate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Upload and chat limits — single source of truth for server and client.
const (
	MaxUploadBytes       = 300 * 1024 * 1024
	MaxChatMessageLength = 2000

	MinSequenceLength = 1
	MaxSequenceLength = 600
	MinOutputFPS      = 1
	MaxOutputFPS      = 120
)

var allowedExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// Filename checks the uploaded name and returns a user-facing message when
// it is unacceptable, empty string otherwise.
func Filename(name string) string {
	if strings.TrimSpace(name) == "" {
		return "No selected file"
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return "Invalid file type"
	}
	return ""
}

func UploadSize(bytes int64) string {
	if bytes > MaxUploadBytes {
		return fmt.Sprintf("File exceeds the %d MB upload limit", MaxUploadBytes/(1024*1024))
	}
	return ""
}

func ChatMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return "No message provided"
	}
	if len(message) > MaxChatMessageLength {
		return fmt.Sprintf("message must be %d characters or fewer", MaxChatMessageLength)
	}
	return ""
}

func SequenceLength(n int) string {
	if n < MinSequenceLength || n > MaxSequenceLength {
		return fmt.Sprintf("sequence length must be between %d and %d", MinSequenceLength, MaxSequenceLength)
	}
	return ""
}

func Threshold(v float64) string {
	if v <= 0 || v > 1 {
		return "threshold must be between 0 and 1"
	}
	return ""
}

func OutputFrameRate(n int) string {
	if n < MinOutputFPS || n > MaxOutputFPS {
		return fmt.Sprintf("output frame rate must be between %d and %d", MinOutputFPS, MaxOutputFPS)
	}
	return ""
}
