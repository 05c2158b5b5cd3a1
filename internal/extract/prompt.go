package extract

import (
	"fmt"
	"strings"

	"github.com/reviewlens/reviewlens/pkg/models"
)

// PromptBuilder constructs extraction prompts from review samples.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type PromptBuilder struct{}

// BuildSystem returns the system prompt fixing the response schema.
func (b PromptBuilder) BuildSystem() string {
	return strings.TrimSpace(`
You analyze app store reviews and extract recurring user pain points.
Respond with a single JSON object and nothing else:
{"findings": [{
  "category": "ux|performance|stability|features|pricing|support|content|other",
  "severity": "high|medium|low",
  "frequency": <number of reviews supporting this finding>,
  "description": "<one sentence>",
  "quotes": ["<verbatim review excerpt>", ...],
  "improvement": {
    "action": "<concrete recommendation>",
    "phase": "immediate|short_term|long_term",
    "effort": "low|medium|high",
    "impact": "low|medium|high"
  }
}]}
Use only the listed enum values. Do not invent reviews.`)
}

// BuildUser returns the user prompt carrying the samples for one app.
func (b PromptBuilder) BuildUser(appID string, samples []models.Review) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "App: %s\nReviews (%d):\n", appID, len(samples))
	for i, s := range samples {
		fmt.Fprintf(&sb, "%d. [%d star] %s\n", i+1, s.Score, s.Text)
	}
	return sb.String()
}
