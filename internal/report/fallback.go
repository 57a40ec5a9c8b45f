package report

import (
	"fmt"
	"strings"

	"github.com/fightlens/fightlens/internal/job"
)

// Unavailable is stored when no report backend is configured at all.
const Unavailable = `<h2>Report Unavailable</h2>
<p>Report generation requires an AI backend. Set the AI_API_KEY environment variable.</p>`

// Fallback builds a deterministic report from the detection data alone, for
// when the AI backend is unreachable or misbehaves.
func Fallback(j *job.Job) string {
	if j.Results == nil {
		return Unavailable
	}

	incidents := len(j.Results.Incidents())
	threat := "NORMAL"
	assessment := "No security incidents were detected in the analyzed footage."
	actions := []string{
		"Continue standard monitoring protocols",
		"Maintain current security staffing levels",
	}
	followUp := "Continue regular security sweeps and monitoring."
	if incidents > 0 {
		threat = "ELEVATED"
		assessment = "The system has detected potential security incidents that require attention."
		actions = []string{
			"Review the highlighted timestamps to confirm incidents",
			"Consider increasing security presence in affected areas",
			"Investigate the cause of detected incidents",
		}
		followUp = "If incidents are confirmed, follow standard incident response protocols and document all findings."
	}

	var items strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&items, "<li>%s</li>\n", a)
	}

	return fmt.Sprintf(`<div class="alert alert-secondary mb-4">
<p><strong>Note:</strong> AI-powered detailed analysis unavailable. Showing system-generated report.</p>
</div>

<h3 class="mt-4 mb-3">Executive Summary</h3>
<p>This system-generated report provides an assessment of the analyzed video footage from the stadium security system.</p>

<h3 class="mt-4 mb-3">Threat Analysis</h3>
<p>Based on the automated detection system, the security threat level is <strong>%s</strong>.</p>
<p>%s</p>
<ul>
<li>Total frames analyzed: %d</li>
<li>Incidents detected: %d</li>
<li>Processing time: %.2f seconds</li>
<li>Detection threshold: %.2f</li>
</ul>

<h3 class="mt-4 mb-3">Security Recommendations</h3>
<div class="alert alert-warning">
<p><strong>Recommended Actions:</strong></p>
<ul>
%s</ul>
</div>

<h3 class="mt-4 mb-3">Follow-up Procedures</h3>
<p>%s</p>
`,
		threat,
		assessment,
		j.Results.TotalFrames,
		incidents,
		j.Results.ProcessingTimeSeconds,
		j.Results.Threshold,
		items.String(),
		followUp,
	)
}
