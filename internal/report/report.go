// Package report turns detection results into a security report and powers
// the results-page assistant. Both talk to an OpenAI-compatible endpoint.
package report

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fightlens/fightlens/internal/job"
)

type Client struct {
	api   *openai.Client
	model string
}

func New(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

const reportSystemPrompt = `You are a professional security analyst for a stadium. You turn automated fight-detection results into a written security report.

Create a report with these sections:
1. Executive Summary - Brief overview of the security situation
2. Threat Analysis - Interpret the severity of detected incidents
3. Security Recommendations - Actions that should be taken
4. Follow-up Procedures - Next steps for security personnel

Formatting requirements:
- Use h3 tags with class="mt-4 mb-3" for section headers
- Format recommendations inside <div class="alert alert-warning"> boxes
- Use <ul> and <li> tags for lists

DO NOT list each incident individually, they are already shown in a timeline.
DO NOT wrap your response in markdown code blocks. Output direct HTML.`

const chatSystemPrompt = `You are a security assistant for a stadium monitoring system that detects fights and violent incidents.

- Respond directly and concisely to the user's question
- Provide factual information based on the detection data
- Use a professional, helpful tone appropriate for security personnel
- DO NOT use markdown formatting in your response
- DO NOT reference yourself as an AI or assistant
- Keep responses under 150 words unless a detailed explanation is needed`

// Generate produces the HTML security report for a completed job.
func (c *Client) Generate(ctx context.Context, j *job.Job) (string, error) {
	if j.Results == nil {
		return "", fmt.Errorf("job %s has no results", j.ID)
	}

	text, err := c.complete(ctx, reportSystemPrompt, detectionContext(j))
	if err != nil {
		return "", err
	}

	return banner(j) + stripMarkdownFences(text), nil
}

// Reply answers one assistant question in the context of a completed job.
func (c *Client) Reply(ctx context.Context, j *job.Job, message string) (string, error) {
	if j.Results == nil {
		return "", fmt.Errorf("job %s has no results", j.ID)
	}

	prompt := detectionContext(j) + "\n## Question from security officer\n" + message
	text, err := c.complete(ctx, chatSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// detectionContext formats the job's detection data the way the prompts
// expect it.
func detectionContext(j *job.Job) string {
	incidents := j.Results.Incidents()

	var b strings.Builder
	fmt.Fprintf(&b, "## Detection Data\n")
	fmt.Fprintf(&b, "- Video analyzed: %s\n", j.Filename)
	fmt.Fprintf(&b, "- Total frames processed: %d\n", j.Results.TotalFrames)
	fmt.Fprintf(&b, "- Detection threshold: %.2f\n", j.Results.Threshold)
	fmt.Fprintf(&b, "- Total incidents detected: %d\n\n", len(incidents))

	if len(incidents) == 0 {
		b.WriteString("No incidents were detected in this video.\n")
		return b.String()
	}

	b.WriteString("## Detected Incidents\n")
	for i, inc := range incidents {
		fmt.Fprintf(&b, "Incident #%d:\n", i+1)
		fmt.Fprintf(&b, "- Time: %s to %s\n", inc.StartTime, inc.EndTime)
		fmt.Fprintf(&b, "- Frames: %d to %d\n", inc.StartFrame, inc.EndFrame)
		fmt.Fprintf(&b, "- Confidence: %.2f\n\n", inc.Probability)
	}
	return b.String()
}

func banner(j *job.Job) string {
	incidents := len(j.Results.Incidents())
	if incidents > 0 {
		return fmt.Sprintf(`<div class="alert alert-danger mb-4">
<h3 class="alert-heading">Security Assessment Report</h3>
<p><strong>Status:</strong> Incidents Detected - Action Required (%d)</p>
</div>
`, incidents)
	}
	return `<div class="alert alert-success mb-4">
<h3 class="alert-heading">Security Assessment Report</h3>
<p><strong>Status:</strong> No Incidents - Normal Operations</p>
</div>
`
}

func stripMarkdownFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		firstNewline := strings.Index(trimmed, "\n")
		if firstNewline == -1 {
			return trimmed
		}
		trimmed = trimmed[firstNewline+1:]

		if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
			trimmed = trimmed[:idx]
		}

		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
